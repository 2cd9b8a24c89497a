package ops

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestManagerCreateAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operations.json")
	m := NewManager(path)

	op, err := m.Create("op1", "portfolio_update", map[string]any{"user": "octocat"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if op.Status != StatusPending {
		t.Errorf("status = %s, want pending", op.Status)
	}

	got, ok := m.Get("op1")
	if !ok {
		t.Fatalf("Get(op1) not found")
	}
	if got != op {
		t.Errorf("Get returned a different operation")
	}

	if _, ok := m.Get("nope"); ok {
		t.Errorf("Get(nope) found something")
	}
}

func TestManagerDuplicateCreateFails(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "operations.json"))
	if _, err := m.Create("op1", "t", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create("op1", "t", nil); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("second Create: err = %v, want ErrDuplicateID", err)
	}
}

func TestManagerPersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operations.json")

	m := NewManager(path)
	op, err := m.Create("op1", "portfolio_update", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := op.Start(); err != nil {
		t.Fatal(err)
	}
	op.UpdateState("step", "fetched")
	if err := m.PauseOperation("op1", map[string]any{"note": "a"}); err != nil {
		t.Fatalf("PauseOperation: %v", err)
	}

	// Fresh manager simulates a process restart.
	m2 := NewManager(path)
	if err := m2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, ok := m2.Get("op1")
	if !ok {
		t.Fatalf("op1 not found after restart")
	}
	if got.Status != StatusPaused {
		t.Errorf("status = %s, want paused", got.Status)
	}
	if len(got.Checkpoints) != 1 {
		t.Fatalf("checkpoints = %d, want 1", len(got.Checkpoints))
	}
	if got.Checkpoints[0].State["step"] != "fetched" {
		t.Errorf("checkpoint step = %v, want fetched", got.Checkpoints[0].State["step"])
	}

	state, err := m2.ResumeOperation("op1")
	if err != nil {
		t.Fatalf("ResumeOperation: %v", err)
	}
	if state["step"] != "fetched" {
		t.Errorf("resumed step = %v, want fetched", state["step"])
	}
}

func TestManagerDocumentShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operations.json")
	m := NewManager(path)
	if _, err := m.Create("op1", "t", nil); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if _, ok := doc["operations"]; !ok {
		t.Errorf("document missing operations field: %v", doc)
	}
	if _, ok := doc["updated_at"]; !ok {
		t.Errorf("document missing updated_at field: %v", doc)
	}
}

func TestManagerLoadMissingFile(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent.json"))
	if err := m.Load(); err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if got := len(m.List("")); got != 0 {
		t.Errorf("operations = %d, want 0", got)
	}
}

func TestManagerLoadCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operations.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(path)
	err := m.Load()
	if err == nil {
		t.Fatalf("Load on corrupt file should report the corruption")
	}
	if got := len(m.List("")); got != 0 {
		t.Errorf("operations = %d, want 0 after corrupt load", got)
	}

	// The manager still works after a corrupt load.
	if _, err := m.Create("op1", "t", nil); err != nil {
		t.Fatalf("Create after corrupt load: %v", err)
	}
}

func TestManagerUnknownIDsAreSilentNoOps(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "operations.json"))
	if err := m.PauseOperation("ghost", nil); err != nil {
		t.Errorf("PauseOperation(ghost) = %v, want nil", err)
	}
	state, err := m.ResumeOperation("ghost")
	if err != nil || state != nil {
		t.Errorf("ResumeOperation(ghost) = %v, %v, want nil, nil", state, err)
	}
}

func TestManagerListFilter(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "operations.json"))
	a, _ := m.Create("a", "t", nil)
	b, _ := m.Create("b", "t", nil)
	if _, err := m.Create("c", "t", nil); err != nil {
		t.Fatal(err)
	}
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	if err := b.Fail("boom"); err != nil {
		t.Fatal(err)
	}

	if got := len(m.List("")); got != 3 {
		t.Errorf("List(all) = %d, want 3", got)
	}
	if got := m.List(StatusRunning); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("List(running) = %v, want [a]", ids(got))
	}
	if got := m.List(StatusFailed); len(got) != 1 || got[0].ID != "b" {
		t.Errorf("List(failed) = %v, want [b]", ids(got))
	}
	if got := len(m.List(StatusPaused)); got != 0 {
		t.Errorf("List(paused) = %d, want 0", got)
	}
}

func ids(ops []*Operation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.ID
	}
	return out
}
