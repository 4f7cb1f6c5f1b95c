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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Artifact  ArtifactConfig  `yaml:"artifact" mapstructure:"artifact"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Domains   DomainsConfig   `yaml:"domains" mapstructure:"domains"`
	Score     ScoreConfig     `yaml:"score" mapstructure:"score"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the lead database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ArtifactConfig configures the raw-page artifact store.
type ArtifactConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// AnthropicConfig holds classifier API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ScrapeConfig configures the scrape orchestrator.
type ScrapeConfig struct {
	Workers          int           `yaml:"workers" mapstructure:"workers"`
	MaxAttempts      int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	ItemTimeout      time.Duration `yaml:"item_timeout" mapstructure:"item_timeout"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
	BatchBudget      time.Duration `yaml:"batch_budget" mapstructure:"batch_budget"`
	MinTextForStatic int           `yaml:"min_text_for_static" mapstructure:"min_text_for_static"`
}

// RenderConfig configures the headless render pool.
type RenderConfig struct {
	PoolSize    int           `yaml:"pool_size" mapstructure:"pool_size"`
	WaitTimeout time.Duration `yaml:"wait_timeout" mapstructure:"wait_timeout"`
	NavTimeout  time.Duration `yaml:"nav_timeout" mapstructure:"nav_timeout"`
}

// DomainsConfig configures per-domain health tracking and backoff.
type DomainsConfig struct {
	FailureThreshold  int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	DegradedAllowance int           `yaml:"degraded_allowance" mapstructure:"degraded_allowance"`
	HealthyAllowance  int           `yaml:"healthy_allowance" mapstructure:"healthy_allowance"`
	InitialBackoff    time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// ScoreConfig configures the scoring orchestrator.
type ScoreConfig struct {
	Workers     int           `yaml:"workers" mapstructure:"workers"`
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	RatePerSec  float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	BatchBudget time.Duration `yaml:"batch_budget" mapstructure:"batch_budget"`
}

// ServerConfig configures the trigger intake server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("LEADPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("artifact.path", "artifacts.db")
	v.SetDefault("artifact.enabled", true)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("scrape.workers", 5)
	v.SetDefault("scrape.max_attempts", 3)
	v.SetDefault("scrape.item_timeout", "45s")
	v.SetDefault("scrape.fetch_timeout", "15s")
	v.SetDefault("scrape.batch_budget", "30m")
	v.SetDefault("scrape.min_text_for_static", 500)
	v.SetDefault("render.pool_size", 3)
	v.SetDefault("render.wait_timeout", "30s")
	v.SetDefault("render.nav_timeout", "20s")
	v.SetDefault("domains.failure_threshold", 3)
	v.SetDefault("domains.degraded_allowance", 1)
	v.SetDefault("domains.healthy_allowance", 2)
	v.SetDefault("domains.initial_backoff", "5s")
	v.SetDefault("domains.max_backoff", "5m")
	v.SetDefault("score.workers", 5)
	v.SetDefault("score.max_attempts", 3)
	v.SetDefault("score.rate_per_sec", 2)
	v.SetDefault("score.call_timeout", "60s")
	v.SetDefault("score.batch_budget", "30m")

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
