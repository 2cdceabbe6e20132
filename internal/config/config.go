package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	DBSource       string `mapstructure:"DB_SOURCE"`
	Port           string `mapstructure:"SERVER_PORT"`
	Env            string `mapstructure:"ENVIRONMENT"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	MigrateOnStart bool   `mapstructure:"MIGRATE_ON_START"`
	DBMaxConns     int32  `mapstructure:"DB_MAX_CONNS"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`
	EventQueueSize int    `mapstructure:"EVENT_QUEUE_SIZE"`

	RedisURL           string `mapstructure:"REDIS_URL"`
	RateLimitPrefix    string `mapstructure:"RATE_LIMIT_PREFIX"`
	RateLimitPerMinute int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`

	ReferralEdgeMaxLevel int `mapstructure:"REFERRAL_EDGE_MAX_LEVEL"`

	ReconcileSchedule string `mapstructure:"RECONCILE_SCHEDULE"`
	MetricsPort       string `mapstructure:"METRICS_PORT"`
}

var keys = []string{
	"DB_SOURCE", "SERVER_PORT", "ENVIRONMENT", "LOG_LEVEL", "JWT_SECRET", "MIGRATE_ON_START", "DB_MAX_CONNS",
	"RABBITMQ_URL", "EVENTS_EXCHANGE", "EVENT_QUEUE_SIZE",
	"REDIS_URL", "RATE_LIMIT_PREFIX", "RATE_LIMIT_PER_MINUTE",
	"REFERRAL_EDGE_MAX_LEVEL", "RECONCILE_SCHEDULE", "METRICS_PORT",
}

// Load reads configuration from the environment, after an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MIGRATE_ON_START", true)
	viper.SetDefault("DB_MAX_CONNS", 20)
	viper.SetDefault("EVENTS_EXCHANGE", "ledger_events")
	viper.SetDefault("EVENT_QUEUE_SIZE", 256)
	viper.SetDefault("RATE_LIMIT_PREFIX", "refledger:rate_limit")
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 20)
	viper.SetDefault("REFERRAL_EDGE_MAX_LEVEL", 1)
	viper.SetDefault("RECONCILE_SCHEDULE", "@every 15m")
	viper.SetDefault("METRICS_PORT", "9102")
	viper.AutomaticEnv()

	for _, k := range keys {
		_ = viper.BindEnv(k)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if strings.TrimSpace(cfg.DBSource) == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if cfg.ReferralEdgeMaxLevel < 1 {
		return nil, fmt.Errorf("REFERRAL_EDGE_MAX_LEVEL must be at least 1, got %d", cfg.ReferralEdgeMaxLevel)
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// NewLogger builds a console logger in development and a JSON logger otherwise.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	zc := zap.NewProductionConfig()
	if c.IsDevelopment() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
