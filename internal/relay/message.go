// Package relay provides synchronous named-handler dispatch emulating
// request/response/event/broadcast messaging within one process.
package relay

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Type classifies a relay message.
type Type string

const (
	TypeRequest   Type = "request"
	TypeResponse  Type = "response"
	TypeEvent     Type = "event"
	TypeBroadcast Type = "broadcast"
)

// Broadcast is the wildcard recipient delivered to every handler but the sender.
const Broadcast = "*"

// Message is one unit of handler-to-handler communication.
type Message struct {
	MsgID         string         `json:"msg_id"`
	From          string         `json:"from"`
	To            string         `json:"to"`
	Type          Type           `json:"type"`
	Payload       map[string]any `json:"payload"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// NewMessage creates a message with a generated ID and timestamp.
func NewMessage(from, to string, msgType Type, payload map[string]any, correlationID string) *Message {
	return &Message{
		MsgID:         GenerateMsgID(),
		From:          from,
		To:            to,
		Type:          msgType,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// GenerateMsgID returns a msg- prefixed 8-hex identifier.
func GenerateMsgID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// Fallback to time-based bytes if crypto/rand fails.
		n := time.Now().UnixNano()
		buf[0] = byte(n)
		buf[1] = byte(n >> 8)
		buf[2] = byte(n >> 16)
		buf[3] = byte(n >> 24)
	}
	return "msg-" + hex.EncodeToString(buf)
}
