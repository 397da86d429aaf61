package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sledworks/catalog-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Matcher   MatcherConfig   `yaml:"matcher" mapstructure:"matcher"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Registry  RegistryConfig  `yaml:"registry" mapstructure:"registry"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// EnrichConfig configures the rate-limited enrichment client.
type EnrichConfig struct {
	MinIntervalMS int `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MaxBatchSize  int `yaml:"max_batch_size" mapstructure:"max_batch_size"`
	MaxRetries    int `yaml:"max_retries" mapstructure:"max_retries"`

	// BreakerThreshold and BreakerResetS tune the provider circuit
	// breaker: consecutive transient failures before calls stop, and
	// seconds before a recovery probe is allowed.
	BreakerThreshold int `yaml:"breaker_failure_threshold" mapstructure:"breaker_failure_threshold"`
	BreakerResetS    int `yaml:"breaker_reset_timeout_s" mapstructure:"breaker_reset_timeout_s"`
}

// MatcherConfig configures structured matching.
type MatcherConfig struct {
	// PatternsPath points at a YAML pattern table; empty uses the
	// built-in Ski-Doo and Lynx rules.
	PatternsPath string `yaml:"patterns_path" mapstructure:"patterns_path"`
}

// PipelineConfig configures reconciliation behavior.
type PipelineConfig struct {
	Thresholds      model.Thresholds `yaml:"thresholds" mapstructure:"thresholds"`
	StageAcceptance float64          `yaml:"stage_acceptance" mapstructure:"stage_acceptance"`
	MaxConcurrent   int              `yaml:"max_concurrent_processing" mapstructure:"max_concurrent_processing"`
	AuditUser       string           `yaml:"audit_user" mapstructure:"audit_user"`
}

// RegistryConfig configures the resumable extraction registry.
type RegistryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP server.
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
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "catalog.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("enrich.min_interval_ms", 500)
	v.SetDefault("enrich.max_concurrent", 4)
	v.SetDefault("enrich.max_batch_size", 20)
	v.SetDefault("enrich.max_retries", 3)
	v.SetDefault("enrich.breaker_failure_threshold", 5)
	v.SetDefault("enrich.breaker_reset_timeout_s", 30)
	v.SetDefault("pipeline.thresholds.auto_accept", 0.9)
	v.SetDefault("pipeline.thresholds.manual_review", 0.7)
	v.SetDefault("pipeline.stage_acceptance", 0.8)
	v.SetDefault("pipeline.max_concurrent_processing", 4)
	v.SetDefault("pipeline.audit_user", "reconciliation-pipeline")
	v.SetDefault("registry.path", "registry.json")
	v.SetDefault("server.port", 8080)
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

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Pipeline.Thresholds.AutoAccept <= c.Pipeline.Thresholds.ManualReview {
		return eris.Errorf("config: auto_accept %.2f must exceed manual_review %.2f",
			c.Pipeline.Thresholds.AutoAccept, c.Pipeline.Thresholds.ManualReview)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
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
