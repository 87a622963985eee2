package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Source   SourceConfig   `yaml:"source" mapstructure:"source"`
	Report   ReportConfig   `yaml:"report" mapstructure:"report"`
	Delivery DeliveryConfig `yaml:"delivery" mapstructure:"delivery"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Audit    AuditConfig    `yaml:"audit" mapstructure:"audit"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Serve    ServeConfig    `yaml:"serve" mapstructure:"serve"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SourceConfig selects where vendor message drops are collected from.
type SourceConfig struct {
	Kind string    `yaml:"kind" mapstructure:"kind"` // "dir" or "ftp"
	Dir  string    `yaml:"dir" mapstructure:"dir"`
	FTP  FTPConfig `yaml:"ftp" mapstructure:"ftp"`
}

// FTPConfig holds FTP drop server settings.
type FTPConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Dir      string `yaml:"dir" mapstructure:"dir"`
}

// ReportConfig configures report sinks.
type ReportConfig struct {
	OutputDir string       `yaml:"output_dir" mapstructure:"output_dir"`
	XLSX      bool         `yaml:"xlsx" mapstructure:"xlsx"`
	Notion    NotionConfig `yaml:"notion" mapstructure:"notion"`
}

// NotionConfig holds Notion API credentials and the quotes database ID.
// The sink is enabled when both are set.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	DatabaseID string `yaml:"database_id" mapstructure:"database_id"`
}

// DeliveryConfig configures the report delivery channel.
type DeliveryConfig struct {
	Kind           string               `yaml:"kind" mapstructure:"kind"` // "outbox" or "webhook"
	Recipient      string               `yaml:"recipient" mapstructure:"recipient"`
	WebhookURL     string               `yaml:"webhook_url" mapstructure:"webhook_url"`
	OutboxDir      string               `yaml:"outbox_dir" mapstructure:"outbox_dir"`
	RatePerMinute  int                  `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig guards the delivery channel.
type CircuitBreakerConfig struct {
	Enabled             bool `yaml:"enabled" mapstructure:"enabled"`
	FailureThreshold    int  `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	RecoveryTimeoutSecs int  `yaml:"recovery_timeout_secs" mapstructure:"recovery_timeout_secs"`
}

// RetryConfig carries the per-stage retry budgets plus the shared
// backoff shape.
type RetryConfig struct {
	Collect StageRetryConfig `yaml:"collect" mapstructure:"collect"`
	Extract StageRetryConfig `yaml:"extract" mapstructure:"extract"`
	Report  StageRetryConfig `yaml:"report" mapstructure:"report"`
	Deliver StageRetryConfig `yaml:"deliver" mapstructure:"deliver"`

	MaxDelayMS int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	Multiplier float64 `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter     bool    `yaml:"jitter" mapstructure:"jitter"`
}

// StageRetryConfig is one stage's retry budget.
type StageRetryConfig struct {
	MaxAttempts    int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialDelayMS int `yaml:"initial_delay_ms" mapstructure:"initial_delay_ms"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServeConfig configures the ops HTTP server.
type ServeConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "pricewatch.db")
	v.SetDefault("source.kind", "dir")
	v.SetDefault("source.dir", "data/messages/text")
	v.SetDefault("report.output_dir", "output")
	v.SetDefault("report.xlsx", true)
	v.SetDefault("delivery.kind", "outbox")
	v.SetDefault("delivery.outbox_dir", "outbox")
	v.SetDefault("delivery.rate_per_minute", 6)
	v.SetDefault("delivery.circuit_breaker.enabled", false)
	v.SetDefault("delivery.circuit_breaker.failure_threshold", 3)
	v.SetDefault("delivery.circuit_breaker.recovery_timeout_secs", 300)
	v.SetDefault("retry.collect.max_attempts", 3)
	v.SetDefault("retry.collect.initial_delay_ms", 5000)
	v.SetDefault("retry.extract.max_attempts", 2)
	v.SetDefault("retry.extract.initial_delay_ms", 3000)
	v.SetDefault("retry.report.max_attempts", 2)
	v.SetDefault("retry.report.initial_delay_ms", 3000)
	v.SetDefault("retry.deliver.max_attempts", 3)
	v.SetDefault("retry.deliver.initial_delay_ms", 5000)
	v.SetDefault("retry.max_delay_ms", 60000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", true)
	v.SetDefault("audit.dir", "logs/audit")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("serve.port", 8085)

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
