// Package contextbuf keeps a rolling, token-budgeted transcript of prompt and
// response fragments, compacting under a configurable strategy so new content
// always fits.
package contextbuf

import (
	"time"
)

// Role identifies who produced a context entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Strategy selects how the buffer frees tokens when over budget.
type Strategy string

const (
	StrategyImportance Strategy = "importance"
	StrategySummarize  Strategy = "summarize"
	StrategyTruncate   Strategy = "truncate"
)

// importantThreshold marks entries exempt from removal during compaction.
const importantThreshold = 8

// Entry is one context fragment. Entries are owned by the buffer that created
// them; only compaction mutates them in place.
type Entry struct {
	Content    string            `json:"content"`
	Role       Role              `json:"role"`
	Importance int               `json:"importance"`
	Tokens     int               `json:"tokens"`
	CreatedAt  time.Time         `json:"created_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Message is the role/content projection of an entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Stats reports buffer usage.
type Stats struct {
	CurrentTokens  int      `json:"current_tokens"`
	MaxTokens      int      `json:"max_tokens"`
	UsagePercent   float64  `json:"usage_percent"`
	EntryCount     int      `json:"entry_count"`
	ImportantCount int      `json:"important_count"`
	Strategy       Strategy `json:"strategy"`
}

// Buffer is a token-budgeted context window. Safe for single-threaded use;
// callers needing concurrency must serialize access externally.
type Buffer struct {
	maxTokens     int
	currentTokens int
	entries       []*Entry
	important     map[int]struct{}
	strategy      Strategy
}

// DefaultMaxTokens is used when New is given a non-positive budget.
const DefaultMaxTokens = 32000

// New creates a buffer with the given token budget and compaction strategy.
func New(maxTokens int, strategy Strategy) *Buffer {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Buffer{
		maxTokens: maxTokens,
		important: make(map[int]struct{}),
		strategy:  strategy,
	}
}

// EstimateTokens approximates token count as content length / 4.
func EstimateTokens(content string) int {
	return len(content) / 4
}

// Add appends content to the buffer, compacting first if the estimate would
// exceed the budget. Returns false (and adds nothing) when compaction cannot
// free enough tokens. Importance >= 8 marks the entry exempt from removal.
func (b *Buffer) Add(content string, role Role, importance int, metadata map[string]string) bool {
	estimated := EstimateTokens(content)

	if b.currentTokens+estimated > b.maxTokens {
		if !b.Compact(estimated) {
			return false
		}
	}

	entry := &Entry{
		Content:    content,
		Role:       role,
		Importance: importance,
		Tokens:     estimated,
		CreatedAt:  time.Now(),
		Metadata:   metadata,
	}
	b.entries = append(b.entries, entry)
	b.currentTokens += estimated

	if importance >= importantThreshold {
		b.important[len(b.entries)-1] = struct{}{}
	}
	return true
}

// Messages returns the role/content projection of all entries in order.
func (b *Buffer) Messages() []Message {
	msgs := make([]Message, len(b.entries))
	for i, e := range b.entries {
		msgs[i] = Message{Role: e.Role, Content: e.Content}
	}
	return msgs
}

// Entries returns copies of the full entry records in order.
func (b *Buffer) Entries() []Entry {
	out := make([]Entry, len(b.entries))
	for i, e := range b.entries {
		out[i] = *e
	}
	return out
}

// Clear resets the buffer. Irreversible.
func (b *Buffer) Clear() {
	b.entries = nil
	b.currentTokens = 0
	b.important = make(map[int]struct{})
}

// Stats returns current usage statistics.
func (b *Buffer) Stats() Stats {
	return Stats{
		CurrentTokens:  b.currentTokens,
		MaxTokens:      b.maxTokens,
		UsagePercent:   float64(b.currentTokens) / float64(b.maxTokens) * 100,
		EntryCount:     len(b.entries),
		ImportantCount: len(b.important),
		Strategy:       b.strategy,
	}
}

// CurrentTokens returns the tracked token total.
func (b *Buffer) CurrentTokens() int { return b.currentTokens }

// MaxTokens returns the configured budget.
func (b *Buffer) MaxTokens() int { return b.maxTokens }
