package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"proxyrank/internal/logger"
)

type Config struct {
	Store  StoreConfig  `mapstructure:"store" validate:"required"`
	Pool   PoolConfig   `mapstructure:"pool" validate:"required"`
	Ingest IngestConfig `mapstructure:"ingest"`
	Status StatusConfig `mapstructure:"status"`
	Log    LogConfig    `mapstructure:"log"`
}

type StoreConfig struct {
	Backend string       `mapstructure:"backend" validate:"required,oneof=redis sqlite"`
	Redis   RedisConfig  `mapstructure:"redis"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"min=0,max=15"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"min=1s,max=1m"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PoolConfig holds the ranking knobs. A record is ranked when its score is above
// MinScore and deleted once it falls to MinScore-PruneFloorOffset or lower.
type PoolConfig struct {
	MinScore          float64       `mapstructure:"min_score"`
	PruneFloorOffset  float64       `mapstructure:"prune_floor_offset" validate:"gt=0"`
	RebuildInterval   time.Duration `mapstructure:"rebuild_interval" validate:"required,min=1m,max=24h"`
	PruneInterval     time.Duration `mapstructure:"prune_interval" validate:"min=0,max=24h"`
	MinProxyKeyLength int           `mapstructure:"min_proxy_key_length" validate:"min=1,max=64"`
	KeyPattern        string        `mapstructure:"key_pattern" validate:"required"`
}

type IngestConfig struct {
	Sources   []string      `mapstructure:"sources" validate:"dive,url"`
	Files     []string      `mapstructure:"files"`
	Interval  time.Duration `mapstructure:"interval" validate:"min=1m,max=168h"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"min=1s,max=5m"`
	UserAgent string        `mapstructure:"user_agent" validate:"required,min=10"`
	Protocols []string      `mapstructure:"protocols" validate:"required,min=1,dive,oneof=http https socks4 socks5"`
}

type StatusConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr" validate:"required,hostname_port"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

var log = logger.New("config")

// setDefaults configures default values for viper
func setDefaults(v *viper.Viper) {
	// Store defaults
	v.SetDefault("store.backend", "redis")
	v.SetDefault("store.redis.addr", "127.0.0.1:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.timeout", "5s")
	v.SetDefault("store.sqlite.path", "./data/proxyrank.db")

	// Pool defaults
	v.SetDefault("pool.min_score", 0.0)
	v.SetDefault("pool.prune_floor_offset", 2.0)
	v.SetDefault("pool.rebuild_interval", "1h")
	v.SetDefault("pool.prune_interval", "0s")
	v.SetDefault("pool.min_proxy_key_length", 10)
	v.SetDefault("pool.key_pattern", "*://*")

	// Ingest defaults
	v.SetDefault("ingest.sources", []string{})
	v.SetDefault("ingest.files", []string{})
	v.SetDefault("ingest.interval", "6h")
	v.SetDefault("ingest.timeout", "30s")
	v.SetDefault("ingest.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("ingest.protocols", []string{"http", "https"})

	// Status defaults
	v.SetDefault("status.enabled", true)
	v.SetDefault("status.listen_addr", ":8090")

	v.SetDefault("log.level", "info")
}

// LoadConfig loads configuration from multiple sources with validation
func LoadConfig(configPath string) (*Config, error) {
	// .env only feeds the process environment, real env vars win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Failed to load .env file", "error", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/proxyrank")

	v.SetEnvPrefix("PROXYRANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Info("No config file found, using defaults and environment variables")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate runs the struct rules plus the checks that span several fields
func Validate(config *Config) error {
	validate := validator.New()

	if err := registerCustomValidators(validate); err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}

	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	switch config.Store.Backend {
	case "redis":
		if strings.TrimSpace(config.Store.Redis.Addr) == "" {
			return fmt.Errorf("config validation failed: store.redis.addr is required for the redis backend")
		}
	case "sqlite":
		if strings.TrimSpace(config.Store.SQLite.Path) == "" {
			return fmt.Errorf("config validation failed: store.sqlite.path is required for the sqlite backend")
		}
	}

	return nil
}

// registerCustomValidators adds custom validation rules
func registerCustomValidators(validate *validator.Validate) error {
	// Custom validator for hostname:port format
	return validate.RegisterValidation("hostname_port", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		if addr == "" {
			return false
		}
		// Simple check for :port format
		return strings.Contains(addr, ":")
	})
}

// SaveConfigTemplate generates a sample configuration file
func SaveConfigTemplate(path string) error {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	if err := v.SafeWriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config template: %w", err)
	}

	return nil
}

// PrintConfig displays the current configuration (for debugging)
func PrintConfig(config *Config) {
	log.Info("Configuration loaded")
	switch config.Store.Backend {
	case "sqlite":
		log.Info("  Store", "backend", "sqlite", "path", config.Store.SQLite.Path)
	default:
		log.Info("  Store", "backend", "redis", "addr", config.Store.Redis.Addr, "db", config.Store.Redis.DB,
			"password_set", config.Store.Redis.Password != "")
	}
	log.Info("  Pool",
		"min_score", config.Pool.MinScore,
		"prune_floor", config.Pool.MinScore-config.Pool.PruneFloorOffset,
		"rebuild_interval", config.Pool.RebuildInterval,
		"prune_interval", config.Pool.PruneInterval,
		"key_pattern", config.Pool.KeyPattern)
	log.Info("  Ingest",
		"sources", len(config.Ingest.Sources),
		"files", len(config.Ingest.Files),
		"interval", config.Ingest.Interval,
		"protocols", config.Ingest.Protocols)
	log.Info("  Status", "enabled", config.Status.Enabled, "listen_addr", config.Status.ListenAddr)
}
