package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/eshotmap/eshot_core/internal/cluster"
	"github.com/eshotmap/eshot_core/internal/eshot"
	"github.com/eshotmap/eshot_core/internal/store"
)

// DefaultPath is the YAML file read when no path is given
const DefaultPath = "config.yml"

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port int `yaml:"port" validate:"gte=1,lte=65535"`
}

// FeedConfig contains upstream endpoints
type FeedConfig struct {
	StopsURL  string        `yaml:"stopsURL" validate:"required,url"`
	LinesURL  string        `yaml:"linesURL" validate:"required,url"`
	BusesURL  string        `yaml:"busesURL" validate:"required,url"`
	UserAgent string        `yaml:"userAgent" validate:"required"`
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
}

// CacheConfig contains the disk cache and live-feed microcache settings
type CacheConfig struct {
	Dir     string        `yaml:"dir" validate:"required"`
	BusTTL  time.Duration `yaml:"busTTL" validate:"gt=0"`
	BusSize int           `yaml:"busSize" validate:"gte=0"`
}

// ClusterConfig contains the grid clustering constants
type ClusterConfig struct {
	BaseSize      float64 `yaml:"baseSize" validate:"gt=0"`
	ReferenceZoom float64 `yaml:"referenceZoom" validate:"gt=0"`
}

// RedisConfig contains optional Redis settings used for rate limiting
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host" validate:"required_if=Enabled true"`
	Port       int    `yaml:"port" validate:"gte=0,lte=65535"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db" validate:"gte=0"`
	TLSEnabled bool   `yaml:"tlsEnabled"`
}

// RateLimitConfig contains per-client request budgets; 0 disables a period
type RateLimitConfig struct {
	PerSecond int `yaml:"perSecond" validate:"gte=0"`
	PerDay    int `yaml:"perDay" validate:"gte=0"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// Config is the root configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Feed      FeedConfig      `yaml:"feed"`
	Cache     CacheConfig     `yaml:"cache"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Feed: FeedConfig{
			StopsURL:  eshot.DefaultStopsURL,
			LinesURL:  eshot.DefaultLinesURL,
			BusesURL:  eshot.DefaultBusesURL,
			UserAgent: eshot.DefaultUserAgent,
			Timeout:   eshot.DefaultTimeout,
		},
		Cache: CacheConfig{
			Dir:     store.DefaultDir(),
			BusTTL:  5 * time.Second,
			BusSize: 2048,
		},
		Cluster: ClusterConfig{
			BaseSize:      cluster.DefaultBaseSize,
			ReferenceZoom: cluster.DefaultReferenceZoom,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		RateLimit: RateLimitConfig{
			PerSecond: 10,
			PerDay:    10000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration in order: defaults, .env, YAML file,
// environment overrides. The result is validated.
// A missing YAML file is not an error; an empty path skips it.
func Load(path string) (*Config, error) {
	// .env is optional; variables may be set directly
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tag constraints
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var err error
	setInt := func(key string, dst *int) {
		if err != nil {
			return
		}
		if v := getEnv(key, ""); v != "" {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("invalid %s: %w", key, perr)
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if err != nil {
			return
		}
		if v := getEnv(key, ""); v != "" {
			f, perr := strconv.ParseFloat(v, 64)
			if perr != nil {
				err = fmt.Errorf("invalid %s: %w", key, perr)
				return
			}
			*dst = f
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if err != nil {
			return
		}
		if v := getEnv(key, ""); v != "" {
			d, perr := time.ParseDuration(v)
			if perr != nil {
				err = fmt.Errorf("invalid %s: %w", key, perr)
				return
			}
			*dst = d
		}
	}
	setBool := func(key string, dst *bool) {
		if err != nil {
			return
		}
		if v := getEnv(key, ""); v != "" {
			b, perr := strconv.ParseBool(v)
			if perr != nil {
				err = fmt.Errorf("invalid %s: %w", key, perr)
				return
			}
			*dst = b
		}
	}

	setInt("API_PORT", &cfg.Server.Port)

	cfg.Feed.StopsURL = getEnv("ESHOT_STOPS_URL", cfg.Feed.StopsURL)
	cfg.Feed.LinesURL = getEnv("ESHOT_LINES_URL", cfg.Feed.LinesURL)
	cfg.Feed.BusesURL = getEnv("ESHOT_BUSES_URL", cfg.Feed.BusesURL)
	cfg.Feed.UserAgent = getEnv("ESHOT_USER_AGENT", cfg.Feed.UserAgent)
	setDuration("ESHOT_TIMEOUT", &cfg.Feed.Timeout)

	cfg.Cache.Dir = getEnv("CACHE_DIR", cfg.Cache.Dir)
	setDuration("BUS_CACHE_TTL", &cfg.Cache.BusTTL)

	setFloat("CLUSTER_BASE_SIZE", &cfg.Cluster.BaseSize)
	setFloat("CLUSTER_REFERENCE_ZOOM", &cfg.Cluster.ReferenceZoom)

	setBool("REDIS_ENABLED", &cfg.Redis.Enabled)
	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	setInt("REDIS_PORT", &cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	setInt("REDIS_DB", &cfg.Redis.DB)
	setBool("REDIS_TLS_ENABLED", &cfg.Redis.TLSEnabled)

	setInt("RATE_LIMIT_PER_SECOND", &cfg.RateLimit.PerSecond)
	setInt("RATE_LIMIT_PER_DAY", &cfg.RateLimit.PerDay)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	return err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
