package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is bound once at startup and passed by reference into constructors.
// Nothing reads configuration ambiently after boot.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	MaxRetries   int    `mapstructure:"max_retries"`
}

// OutboxConfig is the dispatcher policy surface. BaseRetryDelaySeconds is
// authoritative everywhere; the dispatch loop never substitutes its own
// constant.
type OutboxConfig struct {
	Enabled                   bool `mapstructure:"enabled"`
	BatchSize                 int  `mapstructure:"batch_size"`
	ProcessingIntervalSeconds int  `mapstructure:"processing_interval_seconds"`
	MaxRetryAttempts          int  `mapstructure:"max_retry_attempts"`
	MaxConcurrency            int  `mapstructure:"max_concurrency"`
	BaseRetryDelaySeconds     int  `mapstructure:"base_retry_delay_seconds"`
	DeadLetterUnknownEvents   bool `mapstructure:"dead_letter_unknown_events"`
}

func (c OutboxConfig) ProcessingInterval() time.Duration {
	return time.Duration(c.ProcessingIntervalSeconds) * time.Second
}

func (c OutboxConfig) BaseRetryDelay() time.Duration {
	return time.Duration(c.BaseRetryDelaySeconds) * time.Second
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeout_seconds", 30)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "chat")
	viper.SetDefault("database.name", "chat_db")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)

	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)
	viper.SetDefault("redis.max_retries", 3)

	viper.SetDefault("outbox.enabled", true)
	viper.SetDefault("outbox.batch_size", 100)
	viper.SetDefault("outbox.processing_interval_seconds", 5)
	viper.SetDefault("outbox.max_retry_attempts", 3)
	viper.SetDefault("outbox.max_concurrency", 5)
	viper.SetDefault("outbox.base_retry_delay_seconds", 2)
	viper.SetDefault("outbox.dead_letter_unknown_events", false)

	viper.SetDefault("rate_limit.requests_per_second", 50)
	viper.SetDefault("rate_limit.burst", 100)

	viper.SetDefault("log.level", "info")
}
