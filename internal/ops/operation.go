// Package ops tracks long-running operations through a checkpointed
// pause/resume state machine, persisted as a single JSON document so work
// survives process restarts.
package ops

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an operation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ValidStatus reports whether s is a known status tag.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusRunning, StatusPaused, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

var (
	// ErrInvalidTransition marks a state-machine misuse (pause outside
	// running, resume outside paused, and so on).
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNoCheckpoint is returned by Resume when no checkpoint exists.
	ErrNoCheckpoint = errors.New("no checkpoint to resume from")

	// ErrDuplicateID is returned by Manager.Create for an existing id.
	ErrDuplicateID = errors.New("operation id already exists")
)

// Checkpoint is a snapshot of operation state taken on pause. IDs are the
// 0-based count of prior checkpoints.
type Checkpoint struct {
	ID        int            `json:"checkpoint_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
	Data      map[string]any `json:"data"`
}

// Operation is a resumable unit of work.
type Operation struct {
	ID           string         `json:"operation_id"`
	Type         string         `json:"operation_type"`
	Status       Status         `json:"status"`
	State        map[string]any `json:"state"`
	Checkpoints  []Checkpoint   `json:"checkpoints"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// NewOperation creates an operation in pending status.
func NewOperation(id, opType string, initialState map[string]any) *Operation {
	if initialState == nil {
		initialState = map[string]any{}
	}
	now := time.Now().UTC()
	return &Operation{
		ID:        id,
		Type:      opType,
		Status:    StatusPending,
		State:     initialState,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Start moves the operation from pending to running.
func (o *Operation) Start() error {
	if o.Status != StatusPending {
		return fmt.Errorf("ops: cannot start operation in status %s: %w", o.Status, ErrInvalidTransition)
	}
	o.Status = StatusRunning
	o.touch()
	return nil
}

// Pause snapshots the current state as a checkpoint and moves the operation
// to paused. Only valid while running.
func (o *Operation) Pause(data map[string]any) error {
	if o.Status != StatusRunning {
		return fmt.Errorf("ops: cannot pause operation in status %s: %w", o.Status, ErrInvalidTransition)
	}
	if data == nil {
		data = map[string]any{}
	}
	o.Checkpoints = append(o.Checkpoints, Checkpoint{
		ID:        len(o.Checkpoints),
		Timestamp: time.Now().UTC(),
		State:     copyState(o.State),
		Data:      data,
	})
	o.Status = StatusPaused
	o.touch()
	return nil
}

// Resume restores state from the last checkpoint and moves the operation
// back to running. Returns the restored state.
func (o *Operation) Resume() (map[string]any, error) {
	if o.Status != StatusPaused {
		return nil, fmt.Errorf("ops: cannot resume operation in status %s: %w", o.Status, ErrInvalidTransition)
	}
	if len(o.Checkpoints) == 0 {
		return nil, fmt.Errorf("ops: %w", ErrNoCheckpoint)
	}
	last := o.Checkpoints[len(o.Checkpoints)-1]
	o.State = copyState(last.State)
	o.Status = StatusRunning
	o.touch()
	return o.State, nil
}

// Complete marks the operation completed, storing an optional result in state.
func (o *Operation) Complete(result map[string]any) error {
	if o.Status.Terminal() {
		return fmt.Errorf("ops: cannot complete operation in status %s: %w", o.Status, ErrInvalidTransition)
	}
	if result != nil {
		o.State["result"] = result
	}
	o.Status = StatusCompleted
	o.touch()
	return nil
}

// Fail marks the operation failed with a message.
func (o *Operation) Fail(message string) error {
	if o.Status.Terminal() {
		return fmt.Errorf("ops: cannot fail operation in status %s: %w", o.Status, ErrInvalidTransition)
	}
	o.Status = StatusFailed
	o.ErrorMessage = message
	o.touch()
	return nil
}

// Cancel marks the operation cancelled. Bookkeeping only: in-flight work is
// not interrupted.
func (o *Operation) Cancel() error {
	if o.Status.Terminal() {
		return fmt.Errorf("ops: cannot cancel operation in status %s: %w", o.Status, ErrInvalidTransition)
	}
	o.Status = StatusCancelled
	o.touch()
	return nil
}

// UpdateState mutates the live state mapping. No checkpoint is taken.
func (o *Operation) UpdateState(key string, value any) {
	o.State[key] = value
	o.touch()
}

// StateValue returns a single state value.
func (o *Operation) StateValue(key string) (any, bool) {
	v, ok := o.State[key]
	return v, ok
}

func (o *Operation) touch() {
	o.UpdatedAt = time.Now().UTC()
}

func copyState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}
