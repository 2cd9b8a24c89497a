package main

import (
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/norm/folio-agent/internal/ops"
)

func seedOperation(t *testing.T, dir, id string) {
	t.Helper()
	m := ops.NewManager(filepath.Join(dir, "state", "operations.json"))
	op, err := m.Create(id, "portfolio_update", map[string]any{"username": "octocat"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := op.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.Save()
}

func reloadOperation(t *testing.T, dir, id string) *ops.Operation {
	t.Helper()
	m := ops.NewManager(filepath.Join(dir, "state", "operations.json"))
	if err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	op, ok := m.Get(id)
	if !ok {
		t.Fatalf("operation %q not found after reload", id)
	}
	return op
}

func TestOpsPauseCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FOLIO_DATA_DIR", dir)
	seedOperation(t, dir, "op-cafef00d")

	root := rootCommand()
	root.SetArgs([]string{"ops", "pause", "op-cafef00d", "--note", "stopping for review"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	op := reloadOperation(t, dir, "op-cafef00d")
	if op.Status != ops.StatusPaused {
		t.Fatalf("Status = %q, want %q", op.Status, ops.StatusPaused)
	}
	if len(op.Checkpoints) != 1 {
		t.Fatalf("Checkpoints = %d, want 1", len(op.Checkpoints))
	}
	if note := op.Checkpoints[0].Data["note"]; note != "stopping for review" {
		t.Fatalf("checkpoint note = %v", note)
	}
}

func TestOpsCancelCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FOLIO_DATA_DIR", dir)
	seedOperation(t, dir, "op-deadbeef")

	root := rootCommand()
	root.SetArgs([]string{"ops", "cancel", "op-deadbeef"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	op := reloadOperation(t, dir, "op-deadbeef")
	if op.Status != ops.StatusCancelled {
		t.Fatalf("Status = %q, want %q", op.Status, ops.StatusCancelled)
	}
}

func TestOpsPauseUnknownOperation(t *testing.T) {
	t.Setenv("FOLIO_DATA_DIR", t.TempDir())

	root := rootCommand()
	root.SetArgs([]string{"ops", "pause", "op-missing"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("Execute() error = %v, want not found", err)
	}
}

func TestPreview(t *testing.T) {
	if got := preview("short post"); got != "short post" {
		t.Fatalf("preview() = %q", got)
	}
	if got := preview("first line\nsecond line"); got != "first line" {
		t.Fatalf("preview() = %q", got)
	}
	long := strings.Repeat("x", 80)
	if got := preview(long); got != strings.Repeat("x", 60)+"..." {
		t.Fatalf("preview() = %q", got)
	}
}

func TestPreviewMultibyte(t *testing.T) {
	got := preview(strings.Repeat("é", 80))
	if !utf8.ValidString(got) {
		t.Fatalf("preview() produced invalid UTF-8: %q", got)
	}
	if want := strings.Repeat("é", 60) + "..."; got != want {
		t.Fatalf("preview() = %q, want %q", got, want)
	}
}
