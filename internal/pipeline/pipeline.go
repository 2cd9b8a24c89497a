// Package pipeline chains the portfolio update workflow: GitHub analysis,
// content generation, file writing and memory persistence.
package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/norm/folio-agent/internal/condense"
	"github.com/norm/folio-agent/internal/contextbuf"
	"github.com/norm/folio-agent/internal/gemini"
	"github.com/norm/folio-agent/internal/github"
	logpkg "github.com/norm/folio-agent/internal/log"
	"github.com/norm/folio-agent/internal/memory"
	"github.com/norm/folio-agent/internal/ops"
	"github.com/norm/folio-agent/internal/portfolio"
	"github.com/norm/folio-agent/internal/quality"
	"github.com/norm/folio-agent/internal/relay"
	"github.com/norm/folio-agent/internal/session"
)

// Stage names for error tagging and metrics.
const (
	StageFetch    = "github_fetch"
	StageActivity = "repo_activity"
	StageGenerate = "generate"
	StageWrite    = "write"
	StageMemory   = "memory"
)

// Agent names on the relay bus. The orchestrator sends stage events to the
// agent responsible for each stage, and broadcasts run completion.
const (
	AgentOrchestrator = "orchestrator"
	AgentGitHub       = "github_agent"
	AgentContent      = "content_agent"
	AgentWriter       = "writer_agent"
	AgentMemory       = "memory_agent"
)

// stageAgent maps a stage to the agent addressed with its events.
func stageAgent(stage string) string {
	switch stage {
	case StageFetch, StageActivity:
		return AgentGitHub
	case StageGenerate:
		return AgentContent
	case StageWrite:
		return AgentWriter
	default:
		return AgentMemory
	}
}

// StageError tags a failure with the pipeline stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Fetcher gathers GitHub data.
type Fetcher interface {
	Profile(ctx context.Context, username string) (*github.Profile, error)
	RepoActivity(ctx context.Context, username string, topN int) (*github.Activity, error)
}

// Generator produces content from a request.
type Generator interface {
	Generate(ctx context.Context, req *gemini.Request) (*gemini.Result, error)
}

// ContentWriter persists generated content.
type ContentWriter interface {
	Write(content, filename string) (*portfolio.WriteResult, error)
}

// MemoryStore records published entries and recalls past ones.
type MemoryStore interface {
	Save(username, post string, meta map[string]string) (*memory.Record, error)
	Posts(username string) []string
}

// Options configures a pipeline run.
type Options struct {
	TopRepos        int
	FormatStyle     string
	Tone            string
	IncludeHashtags bool
	OutputFile      string
}

// Result is the outcome of a run. On write failure the generated content
// and quality metrics are still populated so callers can recover the post.
type Result struct {
	Username    string                 `json:"username"`
	Profile     *github.Profile        `json:"profile,omitempty"`
	Content     string                 `json:"content,omitempty"`
	Model       string                 `json:"model,omitempty"`
	Quality     *quality.Metrics       `json:"quality,omitempty"`
	WriteResult *portfolio.WriteResult `json:"write_result,omitempty"`
	MemoryID    string                 `json:"memory_id,omitempty"`
	SessionID   string                 `json:"session_id,omitempty"`
	Elapsed     time.Duration          `json:"-"`
}

// Pipeline wires the workflow stages together.
type Pipeline struct {
	fetcher   Fetcher
	generator Generator
	writer    ContentWriter
	store     MemoryStore

	condenser *condense.Condenser
	buf       *contextbuf.Buffer
	recorder  *quality.Recorder
	manager   *ops.Manager
	bus       *relay.Relay
	sessions  *session.Manager
	events    *logpkg.EventLog

	opts Options
}

// New creates a pipeline from its required collaborators.
func New(fetcher Fetcher, generator Generator, writer ContentWriter, store MemoryStore, opts Options) *Pipeline {
	if opts.TopRepos <= 0 {
		opts.TopRepos = 3
	}
	if opts.FormatStyle == "" {
		opts.FormatStyle = "LinkedIn"
	}
	if opts.Tone == "" {
		opts.Tone = "professional"
	}
	return &Pipeline{
		fetcher:   fetcher,
		generator: generator,
		writer:    writer,
		store:     store,
		opts:      opts,
	}
}

// SetCondenser attaches a history condenser.
func (p *Pipeline) SetCondenser(c *condense.Condenser) { p.condenser = c }

// SetContext attaches a shared context buffer.
func (p *Pipeline) SetContext(buf *contextbuf.Buffer) { p.buf = buf }

// SetRecorder attaches a metrics recorder.
func (p *Pipeline) SetRecorder(r *quality.Recorder) { p.recorder = r }

// SetOperations attaches an operation manager; runs then create a tracked
// operation with checkpoints that survive restarts.
func (p *Pipeline) SetOperations(m *ops.Manager) { p.manager = m }

// SetRelay attaches a message relay; the run then routes stage coordination
// events to the responsible agents and broadcasts completion.
func (p *Pipeline) SetRelay(r *relay.Relay) { p.bus = r }

// SetSessions attaches a session manager; each run is scoped to a session
// that records the request and its outcome.
func (p *Pipeline) SetSessions(m *session.Manager) { p.sessions = m }

// SetLogger attaches an event log.
func (p *Pipeline) SetLogger(events *logpkg.EventLog) { p.events = events }

// Run executes the full workflow for username. The returned error, if any,
// is a *StageError naming the failed stage. A write failure still returns
// the partial Result alongside the error.
func (p *Pipeline) Run(ctx context.Context, username string) (*Result, error) {
	var op *ops.Operation
	if p.manager != nil {
		created, err := p.manager.Create(generateOpID(), "portfolio_update",
			map[string]any{"username": username})
		if err == nil {
			op = created
			op.Start()
			p.manager.Save()
		}
	}
	return p.run(ctx, username, op)
}

// Resume continues a paused operation from its last checkpoint. Stages whose
// results were checkpointed (the fetched profile) are not repeated.
func (p *Pipeline) Resume(ctx context.Context, opID string) (*Result, error) {
	if p.manager == nil {
		return nil, fmt.Errorf("pipeline: no operation manager configured")
	}
	op, ok := p.manager.Get(opID)
	if !ok {
		return nil, fmt.Errorf("pipeline: operation %s not found", opID)
	}
	state, err := p.manager.ResumeOperation(opID)
	if err != nil {
		return nil, err
	}
	username, _ := state["username"].(string)
	if username == "" {
		return nil, fmt.Errorf("pipeline: operation %s has no username in its state", opID)
	}
	p.logEvent(logpkg.NewEvent(logpkg.EventTypeOpResumed, username).WithOpID(opID))
	return p.run(ctx, username, op)
}

func (p *Pipeline) run(ctx context.Context, username string, op *ops.Operation) (*Result, error) {
	start := time.Now()
	res := &Result{Username: username}

	if p.sessions != nil {
		res.SessionID = p.sessions.Create(username)
		p.sessions.AddHistory(res.SessionID, "user", "portfolio update for "+username)
	}

	// Stage 1: profile. A checkpointed profile from a resumed operation is
	// reused instead of refetching.
	profile, err := p.fetchProfile(ctx, username, op)
	if err != nil {
		p.failOp(op, err)
		return nil, p.stageFail(StageFetch, username, start, err)
	}
	res.Profile = profile
	p.recordStage(StageFetch, true, time.Since(start))
	p.notifyStage(StageFetch, username, "success")
	p.logEvent(logpkg.NewEvent(logpkg.EventTypeProfileFetch, username).WithStatus("success"))

	// Stage 2: repo activity.
	activityStart := time.Now()
	activity, err := p.fetcher.RepoActivity(ctx, username, p.opts.TopRepos)
	if err != nil {
		p.failOp(op, err)
		return nil, p.stageFail(StageActivity, username, activityStart, err)
	}
	p.recordStage(StageActivity, true, time.Since(activityStart))
	p.notifyStage(StageActivity, username, "success")
	p.logEvent(logpkg.NewEvent(logpkg.EventTypeRepoActivity, username).WithStatus("success"))

	// Prior coverage digest keeps new posts from repeating old ones.
	if p.condenser != nil && p.store != nil && p.buf != nil {
		if past := p.store.Posts(username); len(past) > 0 {
			digest := p.condenser.Digest(ctx, username, past)
			if digest != "" {
				p.buf.Add(digest, contextbuf.RoleSystem, 7, map[string]string{"kind": "history_digest"})
			}
		}
	}

	// Stage 3: generation.
	genStart := time.Now()
	genRes, err := p.generator.Generate(ctx, &gemini.Request{
		Profile:         profile,
		Activity:        activity.Repos,
		FormatStyle:     p.opts.FormatStyle,
		Tone:            p.opts.Tone,
		IncludeHashtags: p.opts.IncludeHashtags,
	})
	if err != nil {
		p.failOp(op, err)
		return nil, p.stageFail(StageGenerate, username, genStart, err)
	}
	res.Content = genRes.Content
	res.Model = genRes.Model
	p.recordStage(StageGenerate, true, time.Since(genStart))
	p.notifyStage(StageGenerate, username, "success")

	qm := quality.Evaluate(genRes.Content, 0, 0)
	res.Quality = &qm
	if p.recorder != nil {
		p.recorder.RecordQuality(qm)
	}

	// Stage 4: write. Failure returns the partial result so the generated
	// content is not lost.
	writeStart := time.Now()
	writeRes, err := p.writer.Write(genRes.Content, p.opts.OutputFile)
	if err != nil {
		p.failOp(op, err)
		res.Elapsed = time.Since(start)
		return res, p.stageFail(StageWrite, username, writeStart, err)
	}
	res.WriteResult = writeRes
	p.recordStage(StageWrite, true, time.Since(writeStart))
	p.notifyStage(StageWrite, username, "success")

	// Stage 5: memory. Persistence failure is reported but does not undo
	// the completed write.
	if p.store != nil {
		rec, err := p.store.Save(username, genRes.Content, map[string]string{
			"model":         genRes.Model,
			"quality_score": strconv.FormatFloat(qm.Score, 'f', 2, 64),
			"file":          writeRes.Path,
		})
		if err != nil {
			p.failOp(op, err)
			res.Elapsed = time.Since(start)
			return res, p.stageFail(StageMemory, username, writeStart, err)
		}
		res.MemoryID = rec.ID
		p.recordStage(StageMemory, true, 0)
		p.notifyStage(StageMemory, username, "success")
	}

	res.Elapsed = time.Since(start)
	if op != nil {
		op.Complete(map[string]any{
			"file":          writeRes.Path,
			"model":         genRes.Model,
			"quality_score": qm.Score,
		})
		p.manager.Save()
		p.logEvent(logpkg.NewEvent(logpkg.EventTypeOpCompleted, username).WithOpID(op.ID))
	}
	if p.sessions != nil && res.SessionID != "" {
		p.sessions.AddHistory(res.SessionID, "assistant", genRes.Content)
		p.sessions.SetState(res.SessionID, "file", writeRes.Path)
		p.sessions.SetState(res.SessionID, "model", genRes.Model)
	}
	if p.bus != nil {
		p.bus.SendEvent(AgentOrchestrator, relay.Broadcast, map[string]any{
			"stage":    "pipeline_done",
			"username": username,
			"status":   "success",
			"file":     writeRes.Path,
		})
		p.bus.ProcessQueue()
	}
	p.logEvent(logpkg.NewEvent(logpkg.EventTypePipelineDone, username).
		WithStatus("success").
		WithLatency(float64(res.Elapsed.Milliseconds())))
	return res, nil
}

// fetchProfile returns the checkpointed profile when resuming, otherwise
// fetches it and checkpoints the result on the operation.
func (p *Pipeline) fetchProfile(ctx context.Context, username string, op *ops.Operation) (*github.Profile, error) {
	if op != nil {
		if raw, ok := op.StateValue("profile"); ok {
			if encoded, ok := raw.(string); ok && encoded != "" {
				var profile github.Profile
				if err := json.Unmarshal([]byte(encoded), &profile); err == nil {
					return &profile, nil
				}
			}
		}
	}

	profile, err := p.fetcher.Profile(ctx, username)
	if err != nil {
		return nil, err
	}

	if op != nil {
		if encoded, err := json.Marshal(profile); err == nil {
			op.UpdateState("profile", string(encoded))
			p.manager.Save()
		}
	}
	return profile, nil
}

// generateOpID returns an op- prefixed 8-hex identifier.
func generateOpID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		n := time.Now().UnixNano()
		b[0] = byte(n)
		b[1] = byte(n >> 8)
		b[2] = byte(n >> 16)
		b[3] = byte(n >> 24)
	}
	return "op-" + hex.EncodeToString(b)
}

// notifyStage routes a stage event to the responsible agent and drains the
// queue so registered handlers see it immediately.
func (p *Pipeline) notifyStage(stage, username, status string) {
	if p.bus == nil {
		return
	}
	p.bus.SendEvent(AgentOrchestrator, stageAgent(stage), map[string]any{
		"stage":    stage,
		"username": username,
		"status":   status,
	})
	p.bus.ProcessQueue()
}

func (p *Pipeline) stageFail(stage, username string, start time.Time, err error) error {
	p.recordStage(stage, false, time.Since(start))
	p.notifyStage(stage, username, "fail")
	p.logEvent(logpkg.NewEvent(logpkg.EventTypePipelineDone, username).
		WithStage(stage).
		WithStatus("fail").
		WithError(err.Error()))
	return &StageError{Stage: stage, Err: err}
}

func (p *Pipeline) failOp(op *ops.Operation, err error) {
	if op == nil {
		return
	}
	op.Fail(err.Error())
	p.manager.Save()
}

func (p *Pipeline) recordStage(stage string, success bool, elapsed time.Duration) {
	if p.recorder == nil {
		return
	}
	p.recorder.RecordStage(stage, success, elapsed)
}

func (p *Pipeline) logEvent(evt logpkg.Event) {
	if p.events == nil {
		return
	}
	_ = p.events.Log(evt)
}
