package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "default-secret-change-in-production"

// Storage and cache drivers
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config holds all configuration for the application
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	Port        string `mapstructure:"PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// Storage
	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	TiDBHost      string `mapstructure:"TIDB_HOST"`
	TiDBPort      string `mapstructure:"TIDB_PORT"`
	TiDBUser      string `mapstructure:"TIDB_USER"`
	TiDBPassword  string `mapstructure:"TIDB_PASSWORD"`
	TiDBDatabase  string `mapstructure:"TIDB_DATABASE"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	// Filter result cache and rate limiter backing
	CacheDriver           string        `mapstructure:"CACHE_DRIVER"`
	RedisAddr             string        `mapstructure:"REDIS_ADDR"`
	FilterCacheTTL        time.Duration `mapstructure:"FILTER_CACHE_TTL"`
	FilterCacheMaxEntries int           `mapstructure:"FILTER_CACHE_MAX_ENTRIES"`

	PageSizeDefault int `mapstructure:"PAGE_SIZE_DEFAULT"`
	PageSizeMax     int `mapstructure:"PAGE_SIZE_MAX"`

	// Static plan limits
	PlanMaxTables int `mapstructure:"PLAN_MAX_TABLES"`
	PlanMaxRows   int `mapstructure:"PLAN_MAX_ROWS"`

	SweepInterval      time.Duration `mapstructure:"SWEEP_INTERVAL"`
	RateLimitPerMinute int           `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	RateLimitWindow    time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
}

// Load reads .env (if present), a config.yaml (if present) and the
// environment, in increasing precedence.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("STORAGE_DRIVER", DriverMySQL)
	v.SetDefault("TIDB_HOST", "127.0.0.1")
	v.SetDefault("TIDB_PORT", "4000")
	v.SetDefault("TIDB_USER", "root")
	v.SetDefault("TIDB_PASSWORD", "")
	v.SetDefault("TIDB_DATABASE", "tablestore")

	v.SetDefault("JWT_SECRET", defaultJWTSecret)

	v.SetDefault("CACHE_DRIVER", DriverMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("FILTER_CACHE_TTL", 5*time.Minute)
	v.SetDefault("FILTER_CACHE_MAX_ENTRIES", 1000)

	v.SetDefault("PAGE_SIZE_DEFAULT", 25)
	v.SetDefault("PAGE_SIZE_MAX", 100)

	v.SetDefault("PLAN_MAX_TABLES", 50)
	v.SetDefault("PLAN_MAX_ROWS", 100000)

	v.SetDefault("SWEEP_INTERVAL", time.Hour)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 600)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)
}

func validate(config *Config) error {
	if config.IsProduction() && (config.JWTSecret == defaultJWTSecret || config.JWTSecret == "") {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	switch config.StorageDriver {
	case DriverMySQL, DriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", config.StorageDriver)
	}
	switch config.CacheDriver {
	case DriverMemory, DriverRedis:
	default:
		return fmt.Errorf("unknown CACHE_DRIVER %q", config.CacheDriver)
	}
	if config.PageSizeDefault <= 0 || config.PageSizeMax <= 0 {
		return fmt.Errorf("page sizes must be positive")
	}
	if config.PageSizeDefault > config.PageSizeMax {
		return fmt.Errorf("PAGE_SIZE_DEFAULT (%d) exceeds PAGE_SIZE_MAX (%d)", config.PageSizeDefault, config.PageSizeMax)
	}
	if config.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if config.RateLimitWindow < time.Millisecond {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1ms, got %s", config.RateLimitWindow)
	}
	return nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
