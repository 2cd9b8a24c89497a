// Package portfolio writes generated content to the output file.
package portfolio

import (
	"fmt"
	"os"
	"path/filepath"

	logpkg "github.com/norm/folio-agent/internal/log"
)

// DefaultFilename is used when no output filename is configured.
const DefaultFilename = "portfolio_entry.md"

// Writer persists portfolio entries to disk.
type Writer struct {
	dir    string
	events *logpkg.EventLog
}

// NewWriter creates a writer rooted at dir. An empty dir writes relative to
// the working directory.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// SetLogger attaches an event log.
func (w *Writer) SetLogger(events *logpkg.EventLog) {
	w.events = events
}

// WriteResult describes a completed write.
type WriteResult struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

// Write saves content to filename, creating parent directories as needed.
// An empty filename uses DefaultFilename.
func (w *Writer) Write(content, filename string) (*WriteResult, error) {
	if filename == "" {
		filename = DefaultFilename
	}
	path := filename
	if w.dir != "" && !filepath.IsAbs(filename) {
		path = filepath.Join(w.dir, filename)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		w.logWrite(path, err)
		return nil, fmt.Errorf("portfolio: create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		w.logWrite(path, err)
		return nil, fmt.Errorf("portfolio: write %s: %w", path, err)
	}

	w.logWrite(path, nil)
	return &WriteResult{Path: path, Bytes: len(content)}, nil
}

func (w *Writer) logWrite(path string, err error) {
	if w.events == nil {
		return
	}
	evt := logpkg.NewEvent(logpkg.EventTypeWrite, "").WithStage(path)
	if err != nil {
		evt = evt.WithStatus("fail").WithError(err.Error())
	} else {
		evt = evt.WithStatus("success")
	}
	_ = w.events.Log(evt)
}
