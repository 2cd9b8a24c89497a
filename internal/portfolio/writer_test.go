package portfolio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteDefaultFilename(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	res, err := w.Write("generated content with emoji ✨", "")
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if res.Path != filepath.Join(dir, DefaultFilename) {
		t.Fatalf("Path = %q, want default filename under dir", res.Path)
	}

	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "generated content with emoji ✨" {
		t.Fatalf("content = %q", data)
	}
	if res.Bytes != len(data) {
		t.Fatalf("Bytes = %d, want %d", res.Bytes, len(data))
	}
}

func TestWriteCustomFilename(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	res, err := w.Write("post", filepath.Join("posts", "octocat.md"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "posts", "octocat.md")); err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if res.Bytes != 4 {
		t.Fatalf("Bytes = %d, want 4", res.Bytes)
	}
}

func TestWriteOverwrites(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	if _, err := w.Write("first version", "entry.md"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := w.Write("second", "entry.md"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "entry.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Fatalf("content = %q, want overwrite", data)
	}
}

func TestWriteFailure(t *testing.T) {
	dir := t.TempDir()
	// A file where a directory is needed forces MkdirAll to fail.
	blocker := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	w := NewWriter(dir)
	if _, err := w.Write("post", filepath.Join("blocked", "entry.md")); err == nil {
		t.Fatal("Write() error = nil, want failure")
	}
}
