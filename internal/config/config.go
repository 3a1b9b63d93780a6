package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the lumir-wiki (HTTP API) configuration.
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  DatabaseConfig
	Redis     struct {
		Addr     string
		Password string
		DB       int
	}
	// Directory is the external HR directory service the reconciler
	// validates stored department/rank/position ids against.
	Directory struct {
		BaseURL  string
		APIKey   string
		CacheTTL time.Duration
	}
	Reconcile struct {
		Enabled  bool
		Interval time.Duration
	}
	Log struct {
		Level  string
		Format string
	}
}

// DatabaseConfig PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN builds a lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// Default to true for local dev: if DB is unavailable, lumir-wiki
	// falls back to in-memory repositories so admin pages stay usable
	// with plain `go run`.
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "lumir_wiki")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	// Empty base URL means no live directory; a static snapshot is used
	// instead (dev / tests).
	cfg.Directory.BaseURL = getEnv("DIRECTORY_BASE_URL", "")
	cfg.Directory.APIKey = getEnv("DIRECTORY_API_KEY", "")
	cfg.Directory.CacheTTL = parseDuration(getEnv("DIRECTORY_CACHE_TTL", "5m"), 5*time.Minute)

	cfg.Reconcile.Enabled = getEnv("RECONCILE_ENABLED", "true") == "true"
	cfg.Reconcile.Interval = parseDuration(getEnv("RECONCILE_INTERVAL", "1h"), time.Hour)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
