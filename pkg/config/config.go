// Package config loads engine configuration from config.yaml with
// environment variable overrides. Secrets must only come from environment
// variables (yaml:"-" fields).
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for servicelens-engine.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"servicelens"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"servicelens_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig holds the conversation state store configuration.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// LLMConfig holds the language-model call surface configuration.
type LLMConfig struct {
	// Provider selects the client implementation: "openai" or "anthropic".
	Provider       string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint       string  `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model          string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey         string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature    float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.0"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"30"`
}

// Timeout returns the per-call deadline for model requests.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PipelineConfig holds tunables for the analytics intent pipeline.
type PipelineConfig struct {
	// SessionTTLMinutes is how long an inactive conversation survives.
	SessionTTLMinutes int `yaml:"session_ttl_minutes" env:"SESSION_TTL_MINUTES" env-default:"30"`
	// MatchThreshold is the minimum fuzzy-match confidence for an entity
	// mention to resolve without clarification.
	MatchThreshold float64 `yaml:"match_threshold" env:"MATCH_THRESHOLD" env-default:"0.72"`
	// MaxCandidates caps how many ambiguous matches are offered back to
	// the user in a clarification question.
	MaxCandidates int `yaml:"max_candidates" env:"MAX_CANDIDATES" env-default:"5"`
	// MaxRows is the hard cardinality cap on any synthesized query.
	MaxRows int `yaml:"max_rows" env:"MAX_ROWS" env-default:"500"`
	// TopNLimit is the row limit applied to top-N report modes.
	TopNLimit int `yaml:"top_n_limit" env:"TOP_N_LIMIT" env-default:"25"`
	// StrictSwitchConfirmation requires a pending scope switch to be
	// re-affirmed with the entity mention present, not just a bare "yes".
	StrictSwitchConfirmation bool `yaml:"strict_switch_confirmation" env:"STRICT_SWITCH_CONFIRMATION" env-default:"false"`
}

// SessionTTL returns the conversation expiry as a duration.
func (c *PipelineConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown llm provider %q (want openai or anthropic)", c.LLM.Provider)
	}
	if c.Pipeline.MatchThreshold <= 0 || c.Pipeline.MatchThreshold > 1 {
		return fmt.Errorf("match_threshold must be in (0, 1], got %v", c.Pipeline.MatchThreshold)
	}
	if c.Pipeline.MaxRows <= 0 {
		return fmt.Errorf("max_rows must be positive")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
