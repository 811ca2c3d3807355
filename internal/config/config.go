package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/lead-intake/internal/notify"
	"github.com/sells-group/lead-intake/internal/store"
	"github.com/sells-group/lead-intake/internal/textparse"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig            `yaml:"store" mapstructure:"store"`
	SharpSpring SharpSpringConfig      `yaml:"sharpspring" mapstructure:"sharpspring"`
	Anthropic   AnthropicConfig        `yaml:"anthropic" mapstructure:"anthropic"`
	Chat        notify.ChatConfig      `yaml:"chat" mapstructure:"chat"`
	Outreach    notify.OutreachConfig  `yaml:"outreach" mapstructure:"outreach"`
	Scoring     ScoringConfig          `yaml:"scoring" mapstructure:"scoring"`
	Parser      textparse.Labels       `yaml:"parser" mapstructure:"parser"`
	Server      ServerConfig           `yaml:"server" mapstructure:"server"`
	Reminder    ReminderConfig         `yaml:"reminder" mapstructure:"reminder"`
	Log         LogConfig              `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// SharpSpringConfig holds upstream platform API credentials.
type SharpSpringConfig struct {
	AccountID string  `yaml:"account_id" mapstructure:"account_id"`
	SecretKey string  `yaml:"secret_key" mapstructure:"secret_key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RPS       float64 `yaml:"rps" mapstructure:"rps"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ScoringConfig locates the scorer override file.
type ScoringConfig struct {
	ConfigPath string `yaml:"config_path" mapstructure:"config_path"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port          int    `yaml:"port" mapstructure:"port"`
	WebhookSecret string `yaml:"webhook_secret" mapstructure:"webhook_secret"`
	MaxConcurrent int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ReminderConfig configures the idle-lead reminder scan.
type ReminderConfig struct {
	IdleHours int `yaml:"idle_hours" mapstructure:"idle_hours"`
	Limit     int `yaml:"limit" mapstructure:"limit"`
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
	v.SetEnvPrefix("LEADINTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_concurrent", 16)
	v.SetDefault("sharpspring.base_url", "https://api.sharpspring.com")
	v.SetDefault("sharpspring.rps", 5)
	v.SetDefault("sharpspring.burst", 1)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("reminder.idle_hours", 48)
	v.SetDefault("reminder.limit", 100)

	defaults := textparse.DefaultLabels()
	v.SetDefault("parser.sms", defaults.SMS)
	v.SetDefault("parser.subject", defaults.Subject)
	v.SetDefault("parser.body", defaults.Body)
	v.SetDefault("parser.qualifiers", defaults.Qualifiers)

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
