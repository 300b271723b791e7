// Package config loads the service configuration from the environment and an
// optional TOML tunables file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "RAMS"

// Dispatch modes decide who runs submitted jobs
const (
	// DispatchNone leaves jobs pending until POST /jobs/:id/run
	DispatchNone = "none"
	// DispatchEvents runs a job as soon as its job_submitted event is handled
	DispatchEvents = "events"
	// DispatchWorker runs pending jobs from a polling worker
	DispatchWorker = "worker"
)

// Config is the full service configuration. Variables are read as
// RAMS_<SECTION>_<FIELD>, e.g. RAMS_DB_HOST or RAMS_OPENAI_API_KEY.
type Config struct {
	LogLevel   string           `split_words:"true" default:"info"`
	TuningFile string           `split_words:"true"`
	Database   DatabaseConfig   `envconfig:"DB"`
	Server     ServerConfig     `envconfig:"SERVER"`
	OpenAI     OpenAIConfig     `envconfig:"OPENAI"`
	Knowledge  KnowledgeConfig  `envconfig:"KNOWLEDGE"`
	Generation GenerationConfig `envconfig:"GENERATION"`
	Cache      CacheConfig      `envconfig:"CACHE"`
}

// DatabaseConfig holds the job store connection settings
type DatabaseConfig struct {
	Driver     string `default:"postgres"`
	Host       string `default:"localhost"`
	Port       int    `default:"5432"`
	User       string `default:"postgres"`
	Password   string `default:"postgres"`
	Name       string `default:"rams"`
	SSLMode    string `envconfig:"SSL_MODE" default:"disable"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"rams.db"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Address  string `default:":8080"`
	Dispatch string `default:"events"`
}

// OpenAIConfig holds the model and embedding settings
type OpenAIConfig struct {
	APIKey            string `split_words:"true"`
	BaseURL           string `split_words:"true"`
	ChatModel         string `split_words:"true" default:"gpt-4o-mini"`
	EmbeddingModel    string `split_words:"true" default:"text-embedding-3-small"`
	MaxTokens         int    `split_words:"true" default:"8000"`
	RequestsPerMinute int    `split_words:"true" default:"60"`
}

// KnowledgeConfig holds the knowledge base search endpoint
type KnowledgeConfig struct {
	BaseURL          string        `split_words:"true" default:"http://localhost:54321/rest/v1"`
	ServiceKey       string        `split_words:"true"`
	Timeout          time.Duration `default:"20s"`
	MatchCount       int           `split_words:"true" default:"10"`
	SharedMatchCount int           `split_words:"true" default:"15"`
}

// GenerationConfig holds the orchestrator and worker settings
type GenerationConfig struct {
	AgentTimeout    time.Duration `split_words:"true" default:"150s"`
	InitialProgress int           `split_words:"true" default:"5"`
	PollInterval    time.Duration `split_words:"true" default:"5s"`
	BatchSize       int           `split_words:"true" default:"5"`
}

// CacheConfig holds the partial cache settings
type CacheConfig struct {
	Enabled             bool          `default:"true"`
	SimilarityThreshold float64       `split_words:"true" default:"0.88"`
	TTL                 time.Duration `default:"720h"`
	ReapInterval        time.Duration `split_words:"true" default:"1h"`
}

// Tuning is the optional TOML overlay. Only fields present in the file are applied.
type Tuning struct {
	OpenAI     *OpenAITuning     `toml:"openai"`
	Knowledge  *KnowledgeTuning  `toml:"knowledge"`
	Generation *GenerationTuning `toml:"generation"`
	Cache      *CacheTuning      `toml:"cache"`
}

// OpenAITuning overrides model settings
type OpenAITuning struct {
	ChatModel         *string `toml:"chat_model"`
	EmbeddingModel    *string `toml:"embedding_model"`
	MaxTokens         *int    `toml:"max_tokens"`
	RequestsPerMinute *int    `toml:"requests_per_minute"`
}

// KnowledgeTuning overrides search settings
type KnowledgeTuning struct {
	MatchCount       *int `toml:"match_count"`
	SharedMatchCount *int `toml:"shared_match_count"`
}

// GenerationTuning overrides orchestrator settings. Durations use Go syntax, e.g. "90s".
type GenerationTuning struct {
	AgentTimeout *string `toml:"agent_timeout"`
}

// CacheTuning overrides partial cache settings
type CacheTuning struct {
	Enabled             *bool    `toml:"enabled"`
	SimilarityThreshold *float64 `toml:"similarity_threshold"`
	TTL                 *string  `toml:"ttl"`
}

// Load reads .env when present, processes RAMS_* variables and overlays the
// tunables file named by RAMS_TUNING_FILE. The result is validated.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if cfg.TuningFile != "" {
		data, err := os.ReadFile(cfg.TuningFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read tuning file: %w", err)
		}
		if err := cfg.ApplyTuning(data); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ApplyTuning parses a TOML document and overlays the fields it sets
func (c *Config) ApplyTuning(data []byte) error {
	var t Tuning
	if err := toml.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("failed to parse tuning file: %w", err)
	}

	if o := t.OpenAI; o != nil {
		setIf(&c.OpenAI.ChatModel, o.ChatModel)
		setIf(&c.OpenAI.EmbeddingModel, o.EmbeddingModel)
		setIf(&c.OpenAI.MaxTokens, o.MaxTokens)
		setIf(&c.OpenAI.RequestsPerMinute, o.RequestsPerMinute)
	}
	if k := t.Knowledge; k != nil {
		setIf(&c.Knowledge.MatchCount, k.MatchCount)
		setIf(&c.Knowledge.SharedMatchCount, k.SharedMatchCount)
	}
	if g := t.Generation; g != nil && g.AgentTimeout != nil {
		d, err := time.ParseDuration(*g.AgentTimeout)
		if err != nil {
			return fmt.Errorf("invalid generation.agent_timeout: %w", err)
		}
		c.Generation.AgentTimeout = d
	}
	if ct := t.Cache; ct != nil {
		setIf(&c.Cache.Enabled, ct.Enabled)
		setIf(&c.Cache.SimilarityThreshold, ct.SimilarityThreshold)
		if ct.TTL != nil {
			d, err := time.ParseDuration(*ct.TTL)
			if err != nil {
				return fmt.Errorf("invalid cache.ttl: %w", err)
			}
			c.Cache.TTL = d
		}
	}
	return nil
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("%s_OPENAI_API_KEY is required", EnvPrefix)
	}
	if c.Cache.SimilarityThreshold <= 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache similarity threshold must be in (0, 1], got %v", c.Cache.SimilarityThreshold)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Generation.AgentTimeout <= 0 {
		return fmt.Errorf("agent timeout must be positive")
	}
	if c.Knowledge.Timeout <= 0 {
		return fmt.Errorf("knowledge timeout must be positive")
	}
	if c.Generation.InitialProgress < 0 || c.Generation.InitialProgress > 10 {
		return fmt.Errorf("initial progress must be between 0 and 10")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Server.Dispatch {
	case DispatchNone, DispatchEvents, DispatchWorker:
	default:
		return fmt.Errorf("unknown dispatch mode %q", c.Server.Dispatch)
	}
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
