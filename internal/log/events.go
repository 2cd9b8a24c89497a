package log

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventVersion is the current event schema version.
const EventVersion = 1

// Event captures one agent activity record.
type Event struct {
	Version     int    `json:"v"`                  // Schema version, always 1
	TimestampMs int64  `json:"ts_ms"`              // Unix milliseconds
	EventID     string `json:"event_id"`           // "evt-abc123"
	Type        string `json:"type"`               // "profile_fetch", "generate", "op_paused", etc.
	Username    string `json:"username,omitempty"` // GitHub username the event concerns
	Stage       string `json:"stage,omitempty"`    // Pipeline stage ("fetch", "generate", "write", "memory")
	Status      string `json:"status,omitempty"`   // "success", "fail"

	// Extended fields for tracing and debugging
	OpID      string  `json:"op_id,omitempty"`      // Operation ID for checkpointed runs
	MsgID     string  `json:"msg_id,omitempty"`     // Relay message ID
	Model     string  `json:"model,omitempty"`      // Generation model name
	Error     string  `json:"error,omitempty"`      // Error message if applicable
	LatencyMs float64 `json:"latency_ms,omitempty"` // Operation latency in milliseconds
	Tokens    int     `json:"tokens,omitempty"`     // Token count for context events
}

// WithOpID sets the operation ID for checkpointed pipeline runs.
func (e Event) WithOpID(opID string) Event {
	e.OpID = opID
	return e
}

// WithMsgID sets the relay message ID for tracing.
func (e Event) WithMsgID(msgID string) Event {
	e.MsgID = msgID
	return e
}

// WithError sets the error field.
func (e Event) WithError(err string) Event {
	e.Error = err
	return e
}

// WithStatus sets the status field.
func (e Event) WithStatus(status string) Event {
	e.Status = status
	return e
}

// WithStage sets the pipeline stage.
func (e Event) WithStage(stage string) Event {
	e.Stage = stage
	return e
}

// WithModel sets the generation model name.
func (e Event) WithModel(model string) Event {
	e.Model = model
	return e
}

// WithLatency sets the latency field in milliseconds.
func (e Event) WithLatency(latencyMs float64) Event {
	e.LatencyMs = latencyMs
	return e
}

// WithTokens sets the token count for context accounting events.
func (e Event) WithTokens(tokens int) Event {
	e.Tokens = tokens
	return e
}

// Event type constants.
const (
	EventTypeProfileFetch  = "profile_fetch"
	EventTypeRepoActivity  = "repo_activity"
	EventTypeGenerate      = "generate"
	EventTypeModelFallback = "model_fallback"
	EventTypeWrite         = "write"
	EventTypeMemorySaved   = "memory_saved"
	EventTypeCompaction    = "compaction"
	EventTypeContextAdd    = "context_add"
	EventTypeOpCreated     = "op_created"
	EventTypeOpPaused      = "op_paused"
	EventTypeOpResumed     = "op_resumed"
	EventTypeOpCompleted   = "op_completed"
	EventTypeOpFailed      = "op_failed"
	EventTypeRelayRouted   = "relay_routed"
	EventTypeRelayRequeued = "relay_requeued"
	EventTypeRelayDropped  = "relay_dropped"
	EventTypePipelineDone  = "pipeline_done"
)

// GenerateEventID returns an evt- prefixed 8-hex identifier.
func GenerateEventID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		n := time.Now().UnixNano()
		buf[0] = byte(n)
		buf[1] = byte(n >> 8)
		buf[2] = byte(n >> 16)
		buf[3] = byte(n >> 24)
	}
	return "evt-" + hex.EncodeToString(buf)
}

// NewEvent creates a new event with schema defaults.
func NewEvent(eventType, username string) Event {
	return Event{
		Version:     EventVersion,
		TimestampMs: time.Now().UnixMilli(),
		EventID:     GenerateEventID(),
		Type:        eventType,
		Username:    username,
	}
}

// EventLog writes append-only JSONL logs.
type EventLog struct {
	path string
	mu   sync.Mutex
}

func NewEventLog(logDir string) *EventLog {
	return &EventLog{path: filepath.Join(logDir, "events.jsonl")}
}

func (l *EventLog) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Version == 0 {
		event.Version = EventVersion
	}
	if event.TimestampMs == 0 {
		event.TimestampMs = time.Now().UnixMilli()
	}
	if event.EventID == "" {
		event.EventID = GenerateEventID()
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := file.Write(append(payload, '\n')); err != nil {
		return err
	}

	return nil
}
