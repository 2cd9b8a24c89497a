// Package condense digests prior portfolio entries into a short recap that
// can be fed back into the generation context without blowing the token
// budget. It uses Claude Haiku when an API key is available and falls back
// to heuristic extraction otherwise.
package condense

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = `You summarize a developer's previously published portfolio posts.
Produce a concise digest (3-5 bullet points) of themes and projects already
covered, so new posts can avoid repeating them. Output only the bullets.`

// ModelHaiku3 is the Claude Haiku 3 model ID.
const ModelHaiku3 = "claude-3-haiku-20240307"

// Config holds the model client configuration.
type Config struct {
	Model     string
	MaxTokens int

	MaxRetries     int
	RetryBaseDelay time.Duration

	// APIKey; if empty, ANTHROPIC_API_KEY is used.
	APIKey string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Model:          ModelHaiku3,
		MaxTokens:      500,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
	}
}

// Client runs digest requests against the Anthropic API.
type Client struct {
	cfg *Config
	api anthropic.Client
}

// NewClient creates a model client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Model == "" {
		cfg.Model = ModelHaiku3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("condense: no API key: set ANTHROPIC_API_KEY")
	}

	return &Client{
		cfg: cfg,
		api: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// summarize runs one digest request with exponential-backoff retries.
func (c *Client) summarize(ctx context.Context, userContent string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryBaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.cfg.Model),
			MaxTokens: int64(c.cfg.MaxTokens),
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userContent)),
			},
		})
		if err == nil {
			var out strings.Builder
			for _, block := range resp.Content {
				if block.Type == "text" {
					out.WriteString(block.Text)
				}
			}
			return out.String(), nil
		}

		lastErr = err
		if !retryable(err) {
			return "", fmt.Errorf("condense request: %w", err)
		}
	}

	return "", fmt.Errorf("condense: max retries exceeded: %w", lastErr)
}

// retryable reports whether the request is worth repeating: rate limits,
// server errors and timeouts.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "rate_limit"), strings.Contains(msg, "429"):
		return true
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"),
		strings.Contains(msg, "503"), strings.Contains(msg, "504"):
		return true
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return true
	}
	return false
}

// Condenser digests past content. A nil client means heuristic-only mode.
type Condenser struct {
	client *Client
}

// New creates a condenser. Pass a nil client for heuristic-only operation.
func New(client *Client) *Condenser {
	return &Condenser{client: client}
}

// Digest condenses prior entries for a user into a short recap. The model
// path is tried first; any failure falls back to heuristic extraction, so
// Digest never fails outright.
func (c *Condenser) Digest(ctx context.Context, username string, entries []string) string {
	if len(entries) == 0 {
		return ""
	}

	if c.client != nil {
		result, err := c.client.summarize(ctx, joinEntries(username, entries))
		if err == nil && strings.TrimSpace(result) != "" {
			return strings.TrimSpace(result)
		}
	}

	return heuristicDigest(entries)
}

func joinEntries(username string, entries []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Previously published posts for %s:\n\n", username)
	for i, e := range entries {
		fmt.Fprintf(&b, "--- Post %d ---\n%s\n\n", i+1, e)
	}
	return b.String()
}

// heuristicDigest extracts the opening sentence of each entry.
func heuristicDigest(entries []string) string {
	var b strings.Builder
	b.WriteString("Previously covered:\n")
	for _, e := range entries {
		lead := firstSentence(e)
		if lead == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", lead)
	}
	return strings.TrimRight(b.String(), "\n")
}

// firstSentence returns the first sentence of content, capped at 120 runes.
func firstSentence(content string) string {
	s := strings.TrimSpace(content)
	if s == "" {
		return ""
	}
	if idx := strings.IndexAny(s, ".!?\n"); idx > 0 {
		s = s[:idx+1]
	}
	s = strings.TrimRight(s, "\n")
	if runes := []rune(s); len(runes) > 120 {
		s = string(runes[:120])
	}
	return strings.TrimSpace(s)
}
