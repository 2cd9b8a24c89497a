package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	logpkg "github.com/norm/folio-agent/internal/log"
)

// document is the on-disk shape: every operation's serialized form, rewritten
// in full on each mutating call.
type document struct {
	Operations []*Operation `json:"operations"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Manager is an in-memory registry of operations backed by one JSON file.
// Persistence failures are logged and swallowed; the registry proceeds with
// in-memory state only.
type Manager struct {
	path   string
	mu     sync.Mutex
	ops    map[string]*Operation
	events *logpkg.EventLog
}

// NewManager creates a manager persisting to path.
func NewManager(path string) *Manager {
	return &Manager{
		path: path,
		ops:  make(map[string]*Operation),
	}
}

// SetLogger attaches an event log for persistence warnings.
func (m *Manager) SetLogger(events *logpkg.EventLog) {
	m.events = events
}

// Load reads the backing document. A missing file is not an error; a corrupt
// file is reported but the manager still starts empty so the caller can
// distinguish "no data yet" from "data lost".
func (m *Manager) Load() error {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("ops: decode %s: %w", m.path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range doc.Operations {
		if op.State == nil {
			op.State = map[string]any{}
		}
		m.ops[op.ID] = op
	}
	return nil
}

// Create registers a new operation and persists the registry. An existing id
// is an error rather than a silent overwrite.
func (m *Manager) Create(id, opType string, initialState map[string]any) (*Operation, error) {
	m.mu.Lock()
	if _, exists := m.ops[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("ops: %q: %w", id, ErrDuplicateID)
	}
	op := NewOperation(id, opType, initialState)
	m.ops[id] = op
	m.mu.Unlock()

	m.save()
	return op, nil
}

// Get returns the operation for id, or false if unknown.
func (m *Manager) Get(id string) (*Operation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[id]
	return op, ok
}

// PauseOperation pauses a known operation and persists. Unknown ids are a
// silent no-op.
func (m *Manager) PauseOperation(id string, checkpointData map[string]any) error {
	op, ok := m.Get(id)
	if !ok {
		return nil
	}
	if err := op.Pause(checkpointData); err != nil {
		return err
	}
	m.save()
	return nil
}

// ResumeOperation resumes a known paused operation and persists, returning
// the restored state. Unknown ids return nil state and no error.
func (m *Manager) ResumeOperation(id string) (map[string]any, error) {
	op, ok := m.Get(id)
	if !ok {
		return nil, nil
	}
	state, err := op.Resume()
	if err != nil {
		return nil, err
	}
	m.save()
	return state, nil
}

// List returns operations, optionally filtered by status (empty means all),
// ordered by creation time.
func (m *Manager) List(status Status) []*Operation {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Operation, 0, len(m.ops))
	for _, op := range m.ops {
		if status != "" && op.Status != status {
			continue
		}
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Save persists the registry immediately. Exposed so callers can flush after
// direct Operation mutations (complete, fail, state updates).
func (m *Manager) Save() {
	m.save()
}

// save rewrites the whole backing document. Failures are logged, never raised.
func (m *Manager) save() {
	m.mu.Lock()
	doc := document{
		Operations: make([]*Operation, 0, len(m.ops)),
		UpdatedAt:  time.Now().UTC(),
	}
	for _, op := range m.ops {
		doc.Operations = append(doc.Operations, op)
	}
	m.mu.Unlock()

	sort.Slice(doc.Operations, func(i, j int) bool {
		return doc.Operations[i].ID < doc.Operations[j].ID
	})

	if err := m.writeDoc(doc); err != nil && m.events != nil {
		_ = m.events.Log(logpkg.NewEvent("op_persist_error", "").WithError(err.Error()))
	}
}

func (m *Manager) writeDoc(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}

	// Atomic write
	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, m.path)
}
