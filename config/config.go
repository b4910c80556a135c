package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported store drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration for the application
type Config struct {
	// GitHub API
	GitHubToken    string
	GitHubAPIURL   string
	RequestTimeout time.Duration
	MaxRetries     int
	MaxBackoff     time.Duration

	// Store
	StoreDriver      string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	SQLitePath       string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	StoreTimeout     time.Duration

	// Ingestion
	TopN            int
	FetchWorkers    int
	MaxPages        int
	ListingSince    int64
	ListingSinceMax int64
	MaxCommitPages  int
	IngestInterval  int

	HTTPPort int
	LogLevel string
}

// NewConfig creates a new Config instance
func NewConfig() *Config {
	return &Config{}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("GITHUB_API_URL", "https://api.github.com")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("MAX_BACKOFF", "60s")

	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("SQLITE_PATH", "githubrank.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 25)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")
	v.SetDefault("STORE_TIMEOUT", "10s")

	v.SetDefault("TOP_N", 100)
	v.SetDefault("FETCH_WORKERS", 10)
	v.SetDefault("MAX_PAGES", 5)
	v.SetDefault("LISTING_SINCE", 0)
	v.SetDefault("LISTING_SINCE_MAX", 1_000_000)
	v.SetDefault("MAX_COMMIT_PAGES", 100)
	v.SetDefault("INGEST_INTERVAL", 3600) // 1 hour

	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
}

// Load loads configuration from environment variables and, when path names
// an existing file, from that .env file. Environment variables win.
func (c *Config) Load(path string) error {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	c.GitHubToken = v.GetString("GITHUB_TOKEN")
	c.GitHubAPIURL = strings.TrimRight(v.GetString("GITHUB_API_URL"), "/")
	c.MaxRetries = v.GetInt("MAX_RETRIES")

	var err error
	if c.RequestTimeout, err = parseDuration(v, "REQUEST_TIMEOUT"); err != nil {
		return err
	}
	if c.MaxBackoff, err = parseDuration(v, "MAX_BACKOFF"); err != nil {
		return err
	}

	c.StoreDriver = strings.ToLower(v.GetString("STORE_DRIVER"))
	c.PostgresUser = v.GetString("POSTGRES_USER")
	c.PostgresPassword = v.GetString("POSTGRES_PASSWORD")
	c.PostgresDB = v.GetString("POSTGRES_DB")
	c.PostgresHost = v.GetString("POSTGRES_HOST")
	c.PostgresPort = v.GetString("POSTGRES_PORT")
	c.SQLitePath = v.GetString("SQLITE_PATH")
	c.MaxOpenConns = v.GetInt("DB_MAX_OPEN_CONNS")
	c.MaxIdleConns = v.GetInt("DB_MAX_IDLE_CONNS")
	if c.ConnMaxLifetime, err = parseDuration(v, "DB_CONN_MAX_LIFETIME"); err != nil {
		return err
	}
	if c.StoreTimeout, err = parseDuration(v, "STORE_TIMEOUT"); err != nil {
		return err
	}

	c.TopN = v.GetInt("TOP_N")
	c.FetchWorkers = v.GetInt("FETCH_WORKERS")
	c.MaxPages = v.GetInt("MAX_PAGES")
	c.ListingSince = v.GetInt64("LISTING_SINCE")
	c.ListingSinceMax = v.GetInt64("LISTING_SINCE_MAX")
	c.MaxCommitPages = v.GetInt("MAX_COMMIT_PAGES")
	c.IngestInterval = v.GetInt("INGEST_INTERVAL")

	c.HTTPPort = v.GetInt("HTTP_PORT")
	c.LogLevel = v.GetString("LOG_LEVEL")

	return c.Validate()
}

// Validate checks that the loaded values are usable
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.PostgresUser == "" || c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_USER and POSTGRES_DB are required for the postgres driver")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	if c.TopN <= 0 {
		return fmt.Errorf("TOP_N must be positive, got %d", c.TopN)
	}
	if c.FetchWorkers <= 0 {
		return fmt.Errorf("FETCH_WORKERS must be positive, got %d", c.FetchWorkers)
	}
	if c.MaxPages < 0 || c.MaxCommitPages < 0 || c.MaxRetries < 0 {
		return fmt.Errorf("MAX_PAGES, MAX_COMMIT_PAGES and MAX_RETRIES cannot be negative")
	}
	if c.ListingSince < 0 || c.ListingSinceMax < 1 {
		return fmt.Errorf("LISTING_SINCE cannot be negative and LISTING_SINCE_MAX must be positive")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive, got %s", c.StoreTimeout)
	}
	if c.IngestInterval <= 0 {
		return fmt.Errorf("INGEST_INTERVAL must be positive, got %d", c.IngestInterval)
	}
	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %w", key, err)
	}
	return d, nil
}
