package relay

import (
	"sync"

	logpkg "github.com/norm/folio-agent/internal/log"
)

// Handler receives messages addressed to a registered name.
type Handler func(*Message) error

const (
	// maxQueued caps queue growth from unresolvable destinations.
	maxQueued = 100

	// maxMisses is how many delivery attempts a message gets before it is
	// silently dropped.
	maxMisses = 100
)

// queued wraps a message with its delivery-miss count.
type queued struct {
	msg    *Message
	misses int
}

// Relay is a central broker: handlers register by name, messages are queued
// and delivered FIFO by ProcessQueue.
type Relay struct {
	mu       sync.Mutex
	handlers map[string]Handler
	queue    []*queued
	history  []*Message
	pending  map[string]*Message
	events   *logpkg.EventLog
}

// New creates an empty relay.
func New() *Relay {
	return &Relay{
		handlers: make(map[string]Handler),
		pending:  make(map[string]*Message),
	}
}

// SetLogger attaches an event log for routing and drop events.
func (r *Relay) SetLogger(events *logpkg.EventLog) {
	r.events = events
}

// Register adds a named handler.
func (r *Relay) Register(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Unregister removes a named handler.
func (r *Relay) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Send enqueues a message and records it in history. Requests are indexed by
// message ID for correlation.
func (r *Relay) Send(from, to string, msgType Type, payload map[string]any, correlationID string) *Message {
	msg := NewMessage(from, to, msgType, payload, correlationID)

	r.mu.Lock()
	r.queue = append(r.queue, &queued{msg: msg})
	r.history = append(r.history, msg)
	if msgType == TypeRequest {
		r.pending[msg.MsgID] = msg
	}
	r.mu.Unlock()

	return msg
}

// SendRequest sends a request and returns its message ID for correlation.
func (r *Relay) SendRequest(from, to string, payload map[string]any) string {
	return r.Send(from, to, TypeRequest, payload, "").MsgID
}

// SendResponse sends a response correlated to an earlier request.
func (r *Relay) SendResponse(from, to string, payload map[string]any, correlationID string) *Message {
	return r.Send(from, to, TypeResponse, payload, correlationID)
}

// SendEvent sends a fire-and-forget event notification.
func (r *Relay) SendEvent(from, to string, payload map[string]any) *Message {
	return r.Send(from, to, TypeEvent, payload, "")
}

// ProcessQueue drains the messages queued at call time, FIFO. Broadcasts go
// to every handler except the sender, each failure swallowed independently.
// A destination with no handler re-queues the message at the tail; messages
// are dropped once the queue holds maxQueued entries or a message has missed
// maxMisses times.
func (r *Relay) ProcessQueue() {
	r.mu.Lock()
	batch := r.queue
	r.queue = nil
	r.mu.Unlock()

	for _, qm := range batch {
		r.deliver(qm)
	}
}

func (r *Relay) deliver(qm *queued) {
	msg := qm.msg

	if msg.To == Broadcast {
		r.mu.Lock()
		targets := make(map[string]Handler, len(r.handlers))
		for name, h := range r.handlers {
			targets[name] = h
		}
		r.mu.Unlock()

		for name, handler := range targets {
			if name == msg.From {
				continue
			}
			if err := handler(msg); err != nil {
				r.logEvent(logpkg.EventTypeRelayRouted, msg, err.Error())
			}
		}
		return
	}

	r.mu.Lock()
	handler, ok := r.handlers[msg.To]
	r.mu.Unlock()

	if ok {
		if err := handler(msg); err != nil {
			r.logEvent(logpkg.EventTypeRelayRouted, msg, err.Error())
			return
		}
		r.logEvent(logpkg.EventTypeRelayRouted, msg, "")
		return
	}

	// No handler: re-queue for a later ProcessQueue, bounded both ways.
	qm.misses++
	r.mu.Lock()
	requeue := qm.misses < maxMisses && len(r.queue) < maxQueued
	if requeue {
		r.queue = append(r.queue, qm)
	}
	r.mu.Unlock()

	if requeue {
		r.logEvent(logpkg.EventTypeRelayRequeued, msg, "")
	} else {
		r.logEvent(logpkg.EventTypeRelayDropped, msg, "")
	}
}

// History returns the most recent limit messages, filtered to those where
// name appears as sender or recipient. An empty name matches everything.
func (r *Relay) History(name string, limit int) []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var filtered []*Message
	if name == "" {
		filtered = r.history
	} else {
		for _, msg := range r.history {
			if msg.From == name || msg.To == name {
				filtered = append(filtered, msg)
			}
		}
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}

	out := make([]*Message, len(filtered))
	copy(out, filtered)
	return out
}

// Pending returns the request-correlation index. Written by Send for
// requests; no delivery path consumes it, it exists for inspection.
func (r *Relay) Pending() map[string]*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*Message, len(r.pending))
	for id, msg := range r.pending {
		out[id] = msg
	}
	return out
}

// QueueLen returns the number of queued messages.
func (r *Relay) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func (r *Relay) logEvent(eventType string, msg *Message, errMsg string) {
	if r.events == nil {
		return
	}
	evt := logpkg.NewEvent(eventType, "").WithMsgID(msg.MsgID)
	if errMsg != "" {
		evt = evt.WithError(errMsg)
	}
	_ = r.events.Log(evt)
}
