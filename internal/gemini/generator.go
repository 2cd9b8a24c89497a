// Package gemini generates portfolio content with Google Gemini, falling
// back across model names so both free-tier and pro-tier API keys work.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/norm/folio-agent/internal/contextbuf"
	logpkg "github.com/norm/folio-agent/internal/log"
)

// DefaultModels is the fallback order: free-tier models first.
var DefaultModels = []string{
	"gemini-2.0-flash",
	"gemini-2.0-flash-exp",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
}

// Config holds generator configuration.
type Config struct {
	// Models tried in order. Advances only on not-found class errors.
	Models []string

	// APIKey; if empty, GOOGLE_API_KEY is used.
	APIKey string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{Models: DefaultModels}
}

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("gemini: no API key: set GOOGLE_API_KEY")

// caller performs one generation request against one model.
type caller func(ctx context.Context, model, prompt string) (string, error)

// Generator produces portfolio content from GitHub data.
type Generator struct {
	cfg     *Config
	call    caller
	context *contextbuf.Buffer
	events  *logpkg.EventLog
}

// New creates a generator backed by the Gemini API.
func New(cfg *Config) (*Generator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	g := &Generator{cfg: cfg}
	g.call = func(ctx context.Context, model, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return g, nil
}

// SetContext attaches a context buffer; prompts and responses are recorded
// into it with high importance.
func (g *Generator) SetContext(buf *contextbuf.Buffer) {
	g.context = buf
}

// SetLogger attaches an event log.
func (g *Generator) SetLogger(events *logpkg.EventLog) {
	g.events = events
}

// Generate builds a prompt from the request and tries each configured model
// in order. Not-found class failures advance to the next model; any other
// failure (quota, auth) aborts immediately.
func (g *Generator) Generate(ctx context.Context, req *Request) (*Result, error) {
	prompt := req.Prompt()

	if g.context != nil {
		g.context.Add(prompt, contextbuf.RoleUser, 9, map[string]string{
			"format_style": req.FormatStyle,
			"tone":         req.Tone,
			"name":         req.displayName(),
		})
	}

	var lastErr error
	for _, model := range g.cfg.Models {
		start := time.Now()
		content, err := g.call(ctx, model, prompt)
		if err == nil {
			if g.context != nil {
				g.context.Add(content, contextbuf.RoleAssistant, 8, map[string]string{
					"model":        model,
					"format_style": req.FormatStyle,
				})
			}
			g.logEvent(logpkg.NewEvent(logpkg.EventTypeGenerate, req.login()).
				WithModel(model).
				WithStatus("success").
				WithLatency(float64(time.Since(start).Milliseconds())))
			return &Result{Content: content, Model: model}, nil
		}

		lastErr = err
		if !isModelNotFound(err) {
			// Quota, auth and similar failures are fatal: trying other
			// models would burn quota for the same outcome.
			break
		}
		g.logEvent(logpkg.NewEvent(logpkg.EventTypeModelFallback, req.login()).
			WithModel(model).
			WithError(err.Error()))
	}

	g.logEvent(logpkg.NewEvent(logpkg.EventTypeGenerate, req.login()).
		WithStatus("fail").
		WithError(lastErr.Error()))
	return nil, classify(lastErr, g.cfg.Models)
}

// Result is a successful generation.
type Result struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// isModelNotFound reports whether err is a not-found class failure worth
// retrying on another model name.
func isModelNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}

// classify wraps the final error with a hint about its likely cause.
func classify(err error, models []string) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(strings.ToUpper(msg), "API_KEY") || strings.Contains(lower, "authentication"):
		return fmt.Errorf("gemini: %w (check your GOOGLE_API_KEY)", err)
	case strings.Contains(lower, "quota") || strings.Contains(lower, "rate"):
		return fmt.Errorf("gemini: %w (quota or rate limit exceeded)", err)
	case strings.Contains(lower, "not found") || strings.Contains(lower, "404"):
		return fmt.Errorf("gemini: %w (no model worked, tried: %s)", err, strings.Join(models, ", "))
	default:
		return fmt.Errorf("gemini: %w", err)
	}
}

func (g *Generator) logEvent(evt logpkg.Event) {
	if g.events == nil {
		return
	}
	_ = g.events.Log(evt)
}
