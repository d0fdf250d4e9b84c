// Package config loads and validates ingest configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// defaultPrompt is the instruction sent to the analysis model when no
// override is configured. It pins the model to summarizing what the decision
// actually says and forbids speculation.
const defaultPrompt = `You are a reading aid for supreme court decisions.
Read the attached PDF and the metadata JSON and produce a summary in the
requested JSON shape.

Constraints:
- Summarize only what the decision text supports; never speculate.
- Where the text is silent, write "unknown".
- Keep each narrative field to two to four sentences.
- Judge opinion summaries must stay within the source text.
- Output JSON only, with no surrounding prose.`

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	DB      DBConfig      `mapstructure:"db"`
	Storage StorageConfig `mapstructure:"storage"`
	Gemini  GeminiConfig  `mapstructure:"gemini"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// DBConfig controls the Postgres connection pool.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// StorageConfig selects and parameterizes the blob store backend.
type StorageConfig struct {
	// Provider is one of "gcs", "s3", "local", "memory".
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`

	// S3/R2 settings.
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// Local filesystem settings.
	BaseDir string `mapstructure:"base_dir"`
}

// GeminiConfig controls the external analysis call.
type GeminiConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Prompt         string `mapstructure:"prompt"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
}

// FetchConfig controls the source document fetch.
type FetchConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.region", "auto")
	v.SetDefault("storage.base_dir", "./blobs")
	v.SetDefault("gemini.model", "gemini-3-flash")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.prompt", defaultPrompt)
	v.SetDefault("gemini.timeout_seconds", 120)
	v.SetDefault("gemini.max_attempts", 3)
	v.SetDefault("fetch.timeout_seconds", 60)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	switch c.Storage.Provider {
	case "gcs", "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for provider %q", c.Storage.Provider)
		}
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage provider: %s", c.Storage.Provider)
	}
	if c.Gemini.Model == "" {
		return fmt.Errorf("gemini.model is required")
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		return fmt.Errorf("gemini.timeout_seconds must be > 0")
	}
	if c.Gemini.MaxAttempts <= 0 {
		return fmt.Errorf("gemini.max_attempts must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	return nil
}

// FetchTimeout converts the fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// GeminiTimeout converts the analysis timeout into a duration.
func (c Config) GeminiTimeout() time.Duration {
	return time.Duration(c.Gemini.TimeoutSeconds) * time.Second
}
