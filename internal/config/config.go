// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Marketplacer MarketplacerConfig `yaml:"marketplacer" mapstructure:"marketplacer"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Checkpoint   CheckpointConfig   `yaml:"checkpoint" mapstructure:"checkpoint"`
	Pipeline     PipelineConfig     `yaml:"pipeline" mapstructure:"pipeline"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// MarketplacerConfig holds catalog API settings.
type MarketplacerConfig struct {
	Endpoint  string  `yaml:"endpoint" mapstructure:"endpoint"`
	Token     string  `yaml:"token" mapstructure:"token"`
	PageSize  int     `yaml:"page_size" mapstructure:"page_size"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// AnthropicConfig holds annotation API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// CheckpointConfig configures the durable watermark store.
type CheckpointConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // file, sqlite, or postgres
	Path        string `yaml:"path" mapstructure:"path"`     // file path or sqlite dsn
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Name        string `yaml:"name" mapstructure:"name"`
}

// PipelineConfig configures the enrichment run.
type PipelineConfig struct {
	Epoch         string `yaml:"epoch" mapstructure:"epoch"`
	Concurrency   int    `yaml:"concurrency" mapstructure:"concurrency"`
	PromptVariant string `yaml:"prompt_variant" mapstructure:"prompt_variant"`
	RetryAttempts int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// EpochTime parses the configured epoch start bound.
func (p PipelineConfig) EpochTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, p.Epoch)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "config: parse epoch %q", p.Epoch)
	}
	return t.UTC(), nil
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("UAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("marketplacer.page_size", 100)
	v.SetDefault("marketplacer.rate_limit", 5)
	v.SetDefault("marketplacer.burst", 5)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("checkpoint.driver", "file")
	v.SetDefault("checkpoint.path", "checkpoint.json")
	v.SetDefault("checkpoint.name", "product_status")
	v.SetDefault("pipeline.epoch", "2023-01-01T00:00:00Z")
	v.SetDefault("pipeline.concurrency", 5)
	v.SetDefault("pipeline.prompt_variant", "specific")
	v.SetDefault("pipeline.retry_attempts", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Redacted returns a copy of the config with secrets masked, for display.
func (c Config) Redacted() Config {
	out := c
	if out.Marketplacer.Token != "" {
		out.Marketplacer.Token = "***"
	}
	if out.Anthropic.Key != "" {
		out.Anthropic.Key = "***"
	}
	if out.Checkpoint.DatabaseURL != "" {
		out.Checkpoint.DatabaseURL = "***"
	}
	return out
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
