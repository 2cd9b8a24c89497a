// Command folio is the developer portfolio agent CLI.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/norm/folio-agent/internal/condense"
	"github.com/norm/folio-agent/internal/config"
	"github.com/norm/folio-agent/internal/contextbuf"
	"github.com/norm/folio-agent/internal/gemini"
	ghpkg "github.com/norm/folio-agent/internal/github"
	logpkg "github.com/norm/folio-agent/internal/log"
	"github.com/norm/folio-agent/internal/memory"
	"github.com/norm/folio-agent/internal/ops"
	"github.com/norm/folio-agent/internal/pipeline"
	"github.com/norm/folio-agent/internal/portfolio"
	"github.com/norm/folio-agent/internal/quality"
	"github.com/norm/folio-agent/internal/relay"
	"github.com/norm/folio-agent/internal/session"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "folio",
		Short:         "Generate portfolio content from GitHub activity",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(updateCommand(&configPath))
	root.AddCommand(resumeCommand(&configPath))
	root.AddCommand(opsCommand(&configPath))
	root.AddCommand(historyCommand(&configPath))
	root.AddCommand(statsCommand(&configPath))
	return root
}

// app bundles the wired collaborators behind each subcommand.
type app struct {
	cfg      *config.Config
	events   *logpkg.EventLog
	store    *memory.Store
	manager  *ops.Manager
	recorder *quality.Recorder
	sessions *session.Manager
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	events := logpkg.NewEventLog(cfg.LogDir)

	store, err := memory.Open(cfg.MemoryPath)
	if err != nil {
		// Corrupt memory starts empty; surface it and continue.
		log.Printf("warning: %v", err)
	}
	store.SetLogger(events)

	manager := ops.NewManager(cfg.OperationsPath())
	manager.SetLogger(events)
	if err := manager.Load(); err != nil {
		log.Printf("warning: failed to load operations: %v", err)
	}

	return &app{
		cfg:      cfg,
		events:   events,
		store:    store,
		manager:  manager,
		recorder: quality.NewRecorder(cfg.StateDir),
		sessions: session.NewManager(cfg.SessionTTL),
	}, nil
}

// buildRelay wires the agent message bus: each stage agent logs the
// coordination events the orchestrator routes to it.
func (a *app) buildRelay() *relay.Relay {
	bus := relay.New()
	bus.SetLogger(a.events)
	for _, agent := range []string{
		pipeline.AgentGitHub,
		pipeline.AgentContent,
		pipeline.AgentWriter,
		pipeline.AgentMemory,
	} {
		agent := agent
		bus.Register(agent, func(msg *relay.Message) error {
			username, _ := msg.Payload["username"].(string)
			stage, _ := msg.Payload["stage"].(string)
			status, _ := msg.Payload["status"].(string)
			return a.events.Log(logpkg.NewEvent(logpkg.EventTypeRelayRouted, username).
				WithMsgID(msg.MsgID).
				WithStage(stage + "->" + agent).
				WithStatus(status))
		})
	}
	return bus
}

// buildPipeline wires the full generation pipeline.
func (a *app) buildPipeline() (*pipeline.Pipeline, error) {
	fetcher := ghpkg.NewWithBaseURL(a.cfg.GitHubBaseURL, a.cfg.GitHubTimeout)

	generator, err := gemini.New(&gemini.Config{Models: a.cfg.GenerationModels})
	if err != nil {
		return nil, err
	}

	buf := contextbuf.New(a.cfg.MaxContextTokens, contextbuf.Strategy(a.cfg.CompactionStrategy))
	generator.SetContext(buf)
	generator.SetLogger(a.events)

	writer := portfolio.NewWriter(a.cfg.DataDir)
	writer.SetLogger(a.events)

	p := pipeline.New(fetcher, generator, writer, a.store, pipeline.Options{
		TopRepos:        a.cfg.TopRepos,
		FormatStyle:     a.cfg.FormatStyle,
		Tone:            a.cfg.Tone,
		IncludeHashtags: a.cfg.IncludeHashtags,
		OutputFile:      a.cfg.PortfolioFile,
	})
	p.SetContext(buf)
	p.SetRecorder(a.recorder)
	p.SetOperations(a.manager)
	p.SetRelay(a.buildRelay())
	p.SetSessions(a.sessions)
	p.SetLogger(a.events)

	// Digest generation degrades to heuristics without an Anthropic key.
	client, err := condense.NewClient(&condense.Config{
		Model:     a.cfg.CondenseModel,
		MaxTokens: a.cfg.CondenseMaxTokens,
	})
	if err != nil {
		p.SetCondenser(condense.New(nil))
	} else {
		p.SetCondenser(condense.New(client))
	}
	return p, nil
}

func (a *app) finish(res *pipeline.Result) {
	if err := a.recorder.Save(); err != nil {
		log.Printf("warning: failed to save metrics: %v", err)
	}
	fmt.Printf("wrote %s (model %s, quality %.2f, %s)\n",
		res.WriteResult.Path, res.Model, res.Quality.Score, res.Elapsed.Round(time.Millisecond))
}

func updateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "update <username>",
		Short: "Run a full portfolio update for a GitHub user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			p, err := a.buildPipeline()
			if err != nil {
				return err
			}
			res, err := p.Run(cmd.Context(), args[0])
			if err != nil {
				if res != nil && res.Content != "" {
					fmt.Fprintf(os.Stderr, "generated content (write failed):\n%s\n", res.Content)
				}
				a.recorder.Save()
				return err
			}
			a.finish(res)
			return nil
		},
	}
}

func resumeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <operation-id>",
		Short: "Resume a paused portfolio update from its last checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			p, err := a.buildPipeline()
			if err != nil {
				return err
			}
			res, err := p.Resume(cmd.Context(), args[0])
			if err != nil {
				a.recorder.Save()
				return err
			}
			a.finish(res)
			return nil
		},
	}
}

func opsCommand(configPath *string) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "ops",
		Short: "List tracked operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			if status != "" && !ops.ValidStatus(ops.Status(status)) {
				return fmt.Errorf("invalid status %q", status)
			}
			list := a.manager.List(ops.Status(status))
			if len(list) == 0 {
				fmt.Println("no operations")
				return nil
			}
			for _, op := range list {
				fmt.Printf("%s  %-16s %-10s checkpoints=%d  %s\n",
					op.ID, op.Type, op.Status, len(op.Checkpoints),
					op.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, running, paused, completed, failed, cancelled)")
	cmd.AddCommand(opsPauseCommand(configPath))
	cmd.AddCommand(opsCancelCommand(configPath))
	return cmd
}

func opsPauseCommand(configPath *string) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "pause <operation-id>",
		Short: "Pause a running operation at a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			op, ok := a.manager.Get(args[0])
			if !ok {
				return fmt.Errorf("operation %q not found", args[0])
			}
			var data map[string]any
			if note != "" {
				data = map[string]any{"note": note}
			}
			if err := a.manager.PauseOperation(args[0], data); err != nil {
				return err
			}
			fmt.Printf("%s paused (checkpoint %d)\n", op.ID, len(op.Checkpoints)-1)
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note stored with the checkpoint")
	return cmd
}

func opsCancelCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <operation-id>",
		Short: "Cancel an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			op, ok := a.manager.Get(args[0])
			if !ok {
				return fmt.Errorf("operation %q not found", args[0])
			}
			if err := op.Cancel(); err != nil {
				return err
			}
			a.manager.Save()
			fmt.Printf("%s cancelled\n", op.ID)
			return nil
		},
	}
}

func historyCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history [username]",
		Short: "Show saved portfolio updates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			username := ""
			if len(args) == 1 {
				username = args[0]
			}
			records := a.store.History(username)
			if len(records) == 0 {
				fmt.Println("no history")
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%s  %-12s %s  %s\n", rec.ID, rec.Username,
					rec.Timestamp.Format("2006-01-02 15:04:05"), preview(rec.Post))
			}
			return nil
		},
	}
}

func statsCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the persisted quality metrics snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			path := filepath.Join(a.cfg.StateDir, "quality-metrics.json")
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("no metrics recorded yet")
					return nil
				}
				return err
			}
			var snap quality.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			fmt.Printf("operations: %d total, %d ok, %d failed (%.1f%%)\n",
				snap.TotalOperations, snap.SuccessfulOperations, snap.FailedOperations, snap.OverallSuccessRate)
			fmt.Printf("avg quality: %.2f   avg latency: %.0fms\n",
				snap.AverageContentQuality, snap.AverageLatencyMs)
			for name, sc := range snap.Stages {
				fmt.Printf("  %-14s %d/%d ok\n", name, sc.Success, sc.Total)
			}
			return nil
		},
	}
}

// preview trims a post to one short line.
func preview(post string) string {
	const max = 60
	for i, r := range post {
		if r == '\n' {
			post = post[:i]
			break
		}
	}
	if runes := []rune(post); len(runes) > max {
		post = string(runes[:max]) + "..."
	}
	return post
}
