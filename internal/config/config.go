package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds folio agent configuration.
type Config struct {
	DataDir       string
	LogDir        string
	StateDir      string
	MemoryPath    string
	PortfolioFile string

	MaxContextTokens   int
	CompactionStrategy string

	GitHubBaseURL string
	GitHubTimeout time.Duration
	TopRepos      int

	GenerationModels []string
	FormatStyle      string
	Tone             string
	IncludeHashtags  bool

	CondenseModel     string
	CondenseMaxTokens int

	SessionTTL time.Duration
}

// Default returns the default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "folio")
	return &Config{
		DataDir:            dataDir,
		LogDir:             filepath.Join(dataDir, "log"),
		StateDir:           filepath.Join(dataDir, "state"),
		MemoryPath:         filepath.Join(dataDir, "memory_bank.json"),
		PortfolioFile:      "portfolio_entry.md",
		MaxContextTokens:   32000,
		CompactionStrategy: "importance",
		GitHubBaseURL:      "https://api.github.com",
		GitHubTimeout:      10 * time.Second,
		TopRepos:           3,
		GenerationModels: []string{
			"gemini-2.0-flash",
			"gemini-2.0-flash-exp",
			"gemini-1.5-flash",
			"gemini-1.5-pro",
		},
		FormatStyle:       "LinkedIn",
		Tone:              "professional",
		IncludeHashtags:   true,
		CondenseModel:     "claude-3-haiku-20240307",
		CondenseMaxTokens: 500,
		SessionTTL:        24 * time.Hour,
	}
}

// fileConfig mirrors the TOML layout of the optional config file.
type fileConfig struct {
	DataDir       string `toml:"data_dir"`
	PortfolioFile string `toml:"portfolio_file"`

	Context struct {
		MaxTokens int    `toml:"max_tokens"`
		Strategy  string `toml:"strategy"`
	} `toml:"context"`

	GitHub struct {
		BaseURL  string `toml:"base_url"`
		Timeout  string `toml:"timeout"`
		TopRepos int    `toml:"top_repos"`
	} `toml:"github"`

	Generation struct {
		Models          []string `toml:"models"`
		FormatStyle     string   `toml:"format_style"`
		Tone            string   `toml:"tone"`
		IncludeHashtags *bool    `toml:"include_hashtags"`
	} `toml:"generation"`

	Condense struct {
		Model     string `toml:"model"`
		MaxTokens int    `toml:"max_tokens"`
	} `toml:"condense"`
}

// Load returns configuration assembled from defaults, an optional TOML file,
// and FOLIO_* environment variable overrides (highest precedence).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	overrideString(&cfg.DataDir, "FOLIO_DATA_DIR")
	cfg.LogDir = envOr(filepath.Join(cfg.DataDir, "log"), "FOLIO_LOG_DIR")
	cfg.StateDir = envOr(filepath.Join(cfg.DataDir, "state"), "FOLIO_STATE_DIR")
	cfg.MemoryPath = envOr(filepath.Join(cfg.DataDir, "memory_bank.json"), "FOLIO_MEMORY_PATH")
	cfg.PortfolioFile = envOr(cfg.PortfolioFile, "FOLIO_PORTFOLIO_FILE")

	overrideInt(&cfg.MaxContextTokens, "FOLIO_MAX_CONTEXT_TOKENS")
	cfg.CompactionStrategy = envOr(cfg.CompactionStrategy, "FOLIO_COMPACTION_STRATEGY")

	cfg.GitHubBaseURL = envOr(cfg.GitHubBaseURL, "FOLIO_GITHUB_BASE_URL")
	overrideDuration(&cfg.GitHubTimeout, "FOLIO_GITHUB_TIMEOUT")
	overrideInt(&cfg.TopRepos, "FOLIO_TOP_REPOS")

	cfg.FormatStyle = envOr(cfg.FormatStyle, "FOLIO_FORMAT_STYLE")
	cfg.Tone = envOr(cfg.Tone, "FOLIO_TONE")
	overrideBool(&cfg.IncludeHashtags, "FOLIO_INCLUDE_HASHTAGS")

	overrideDuration(&cfg.SessionTTL, "FOLIO_SESSION_TTL")

	return cfg, nil
}

// loadFile merges TOML file values into the config. Missing file is not an
// error so the agent works out of the box with defaults.
func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	if fc.DataDir != "" {
		c.DataDir = fc.DataDir
	}
	if fc.PortfolioFile != "" {
		c.PortfolioFile = fc.PortfolioFile
	}
	if fc.Context.MaxTokens > 0 {
		c.MaxContextTokens = fc.Context.MaxTokens
	}
	if fc.Context.Strategy != "" {
		c.CompactionStrategy = fc.Context.Strategy
	}
	if fc.GitHub.BaseURL != "" {
		c.GitHubBaseURL = fc.GitHub.BaseURL
	}
	if fc.GitHub.Timeout != "" {
		if parsed, err := time.ParseDuration(fc.GitHub.Timeout); err == nil {
			c.GitHubTimeout = parsed
		}
	}
	if fc.GitHub.TopRepos > 0 {
		c.TopRepos = fc.GitHub.TopRepos
	}
	if len(fc.Generation.Models) > 0 {
		c.GenerationModels = fc.Generation.Models
	}
	if fc.Generation.FormatStyle != "" {
		c.FormatStyle = fc.Generation.FormatStyle
	}
	if fc.Generation.Tone != "" {
		c.Tone = fc.Generation.Tone
	}
	if fc.Generation.IncludeHashtags != nil {
		c.IncludeHashtags = *fc.Generation.IncludeHashtags
	}
	if fc.Condense.Model != "" {
		c.CondenseModel = fc.Condense.Model
	}
	if fc.Condense.MaxTokens > 0 {
		c.CondenseMaxTokens = fc.Condense.MaxTokens
	}

	return nil
}

// OperationsPath returns the path of the operations persistence document.
func (c *Config) OperationsPath() string {
	return filepath.Join(c.StateDir, "operations.json")
}

func envOr(current, key string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return current
}

func overrideString(dest *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val
	}
}

func overrideDuration(dest *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			*dest = parsed
		}
	}
}

func overrideBool(dest *bool, key string) {
	if val := os.Getenv(key); val != "" {
		switch strings.ToLower(val) {
		case "1", "true", "yes", "y", "on":
			*dest = true
		case "0", "false", "no", "n", "off":
			*dest = false
		}
	}
}

func overrideInt(dest *int, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			*dest = parsed
		}
	}
}
