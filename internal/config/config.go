package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all daemon configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Backend BackendConfig `mapstructure:"backend"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string          `mapstructure:"host"`
	Port         int             `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	AuthToken    string          `mapstructure:"auth_token"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute" validate:"min=1"`
	Burst             int `mapstructure:"burst" validate:"min=0"`
}

type StoreConfig struct {
	Driver   string         `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type BackendConfig struct {
	BaseURL         string        `mapstructure:"base_url" validate:"required,url"`
	Token           string        `mapstructure:"token"`
	TokenFile       string        `mapstructure:"token_file"`
	TokenPassphrase string        `mapstructure:"token_passphrase"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type SyncConfig struct {
	Interval  time.Duration `mapstructure:"interval" validate:"min=1s"`
	PageLimit int           `mapstructure:"page_limit" validate:"min=1,max=500"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	// Config file is optional; defaults plus env vars are enough to run.
	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8391)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.rate_limit.requests_per_minute", 300)
	v.SetDefault("server.rate_limit.burst", 50)

	// Store
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite.path", "./data/chat.db")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "gaia")
	v.SetDefault("store.postgres.database", "gaia_chat")
	v.SetDefault("store.postgres.ssl_mode", "disable")
	v.SetDefault("store.postgres.max_conns", 10)

	// Backend
	v.SetDefault("backend.base_url", "https://api.heygaia.io")
	v.SetDefault("backend.timeout", "30s")
	v.SetDefault("backend.token_file", "./data/token.enc")

	// Sync
	v.SetDefault("sync.interval", "60s")
	v.SetDefault("sync.page_limit", 100)

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.auth_token", "CHAT_SYNC_API_TOKEN")

	// Store
	v.BindEnv("store.postgres.password", "POSTGRES_PASSWORD")

	// Backend
	v.BindEnv("backend.base_url", "GAIA_BASE_URL")
	v.BindEnv("backend.token", "GAIA_TOKEN")
	v.BindEnv("backend.token_passphrase", "GAIA_TOKEN_PASSPHRASE")

	// Redis
	v.BindEnv("redis.password", "REDIS_PASSWORD")
}
