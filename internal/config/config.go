// Package config loads the engine configuration: a yaml file for tunables
// and environment variables for credentials. A missing config file falls
// back to defaults; a missing required credential is a setup error that
// stops the run before it starts.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/courtside/internal/kelly"
	"github.com/kingrea/courtside/internal/policy"
)

// DefaultPath is where the CLI looks when -config is not given.
const DefaultPath = "courtside.yaml"

// PipelineConfig tunes the controller and stage adapters.
type PipelineConfig struct {
	MaxRevisions   int     `yaml:"max_revisions"`
	BatchSize      int     `yaml:"batch_size"`
	MaxRetries     int     `yaml:"max_retries"`
	Workers        int     `yaml:"workers"`
	StageTimeoutS  int     `yaml:"stage_timeout_seconds"`
	DefaultOdds    int     `yaml:"default_odds"`
	LineEpsilon    float64 `yaml:"line_epsilon"`
	InitialBalance float64 `yaml:"initial_balance"`
}

// StageTimeout returns the per-stage call deadline.
func (p PipelineConfig) StageTimeout() time.Duration {
	return time.Duration(p.StageTimeoutS) * time.Second
}

// AgentConfig selects the reasoning model. The API key always comes from
// the environment, never the file.
type AgentConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	BaseURL     string  `yaml:"base_url,omitempty"`

	APIKey string `yaml:"-"`
}

// ScrapeConfig selects the slate sources.
type ScrapeConfig struct {
	GamesSource string   `yaml:"games_source"`
	LinesSource string   `yaml:"lines_source"`
	Books       []string `yaml:"books"`

	OddsAPIKey string `yaml:"-"`
}

// CacheConfig selects the cache backend. An empty address means the
// in-process store.
type CacheConfig struct {
	RedisAddr string `yaml:"redis_addr,omitempty"`

	RedisPassword string `yaml:"-"`
}

// StoreConfig selects the persistence backend. An empty DSN means the
// in-process store.
type StoreConfig struct {
	PostgresDSN string `yaml:"-"`
}

// NotifyConfig controls the card announcement.
type NotifyConfig struct {
	Telegram bool `yaml:"telegram"`

	TelegramToken  string `yaml:"-"`
	TelegramChatID string `yaml:"-"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir,omitempty"`
}

// Config is the full engine configuration.
type Config struct {
	Pipeline   PipelineConfig    `yaml:"pipeline"`
	Agent      AgentConfig       `yaml:"agent"`
	Scrape     ScrapeConfig      `yaml:"scrape"`
	Cache      CacheConfig       `yaml:"cache"`
	Store      StoreConfig       `yaml:"store"`
	Notify     NotifyConfig      `yaml:"notify"`
	Logging    LoggingConfig     `yaml:"logging"`
	Sizing     kelly.Config      `yaml:"sizing"`
	Thresholds policy.Thresholds `yaml:"thresholds"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Pipeline: PipelineConfig{
			MaxRevisions:   2,
			BatchSize:      5,
			MaxRetries:     3,
			Workers:        4,
			StageTimeoutS:  300,
			DefaultOdds:    -110,
			LineEpsilon:    0.01,
			InitialBalance: 10000,
		},
		Agent: AgentConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
		},
		Scrape: ScrapeConfig{
			GamesSource: "espn",
			LinesSource: "odds-api",
			Books:       []string{"draftkings", "fanduel"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Sizing:     kelly.DefaultConfig(),
		Thresholds: policy.DefaultThresholds(),
	}
}

// Load reads the yaml file at path over the defaults, then overlays
// credentials from the environment. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg.fromEnv()
	return cfg, nil
}

func (c *Config) fromEnv() {
	c.Agent.APIKey = os.Getenv("OPENAI_API_KEY")
	c.Scrape.OddsAPIKey = os.Getenv("THE_ODDS_API_KEY")
	c.Cache.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Cache.RedisAddr = addr
	}
	c.Store.PostgresDSN = os.Getenv("DATABASE_URL")
	c.Notify.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.Notify.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
}

// Validate checks for setup errors that must stop the run before it
// starts. Everything else degrades at runtime instead.
func (c Config) Validate() error {
	if c.Agent.APIKey == "" {
		return fmt.Errorf("config: OPENAI_API_KEY is required; set it in the environment or .env")
	}
	if c.Pipeline.MaxRevisions < 0 {
		return fmt.Errorf("config: max_revisions must be >= 0, got %d", c.Pipeline.MaxRevisions)
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Notify.Telegram && (c.Notify.TelegramToken == "" || c.Notify.TelegramChatID == "") {
		return fmt.Errorf("config: telegram notifications enabled but TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID is missing")
	}
	return nil
}
