package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/webasthetic/leadflow/internal/mailer"
	"github.com/webasthetic/leadflow/internal/ocr"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig           `yaml:"store" mapstructure:"store"`
	Sync      SyncConfig            `yaml:"sync" mapstructure:"sync"`
	Anthropic AnthropicConfig       `yaml:"anthropic" mapstructure:"anthropic"`
	Scraper   ScraperConfig         `yaml:"scraper" mapstructure:"scraper"`
	OCR       ocr.Options           `yaml:"ocr" mapstructure:"ocr"`
	SMTP      mailer.SMTPConfig     `yaml:"smtp" mapstructure:"smtp"`
	Dispatch  mailer.DispatchConfig `yaml:"dispatch" mapstructure:"dispatch"`
	Outreach  OutreachConfig        `yaml:"outreach" mapstructure:"outreach"`
	Archive   ArchiveConfig         `yaml:"archive" mapstructure:"archive"`
	Pipeline  PipelineConfig        `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig          `yaml:"server" mapstructure:"server"`
	Log       LogConfig             `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SyncConfig configures scrape-drop ingestion.
type SyncConfig struct {
	// FeedURL points at the daily scrape export (JSON array or CSV).
	FeedURL string `yaml:"feed_url" mapstructure:"feed_url"`
	// Format is "json" or "csv".
	Format string `yaml:"format" mapstructure:"format"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
	// Models is the fallback order; completion walks the list when a
	// model is retired or unavailable.
	Models []string `yaml:"models" mapstructure:"models"`
}

// ScraperConfig configures the profile capture service.
type ScraperConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// OutreachConfig configures email generation.
type OutreachConfig struct {
	Footer string `yaml:"footer" mapstructure:"footer"`
	// RatePerMinute caps generation calls.
	RatePerMinute int `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
}

// ArchiveConfig configures sent-copy archiving.
type ArchiveConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// PipelineConfig configures stage processing.
type PipelineConfig struct {
	// Timezone resolves "today" for capture and lead dates.
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
	// StageRatePerMinute caps per-stage item throughput.
	StageRatePerMinute int `yaml:"stage_rate_per_minute" mapstructure:"stage_rate_per_minute"`
}

// ServerConfig configures the job-trigger server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Location returns the configured timezone, falling back to UTC.
func (c PipelineConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %q", c.Timezone)
	}
	return loc, nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "leadflow.db")
	v.SetDefault("sync.format", "json")
	v.SetDefault("anthropic.models", []string{
		"claude-sonnet-4-5-20250929",
		"claude-haiku-4-5-20251001",
	})
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("smtp.port", 465)
	v.SetDefault("dispatch.batch_size", 5)
	v.SetDefault("dispatch.send_delay", 8*time.Second)
	v.SetDefault("outreach.rate_per_minute", 10)
	v.SetDefault("archive.dir", "sent")
	v.SetDefault("pipeline.timezone", "UTC")
	v.SetDefault("pipeline.stage_rate_per_minute", 30)
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
