// Package config loads the environment-variable-driven configuration table
// for the ingestion and worker services. It uses a struct-of-fields shape
// rather than a generic map, so each dependent package can declare precisely
// the sub-config it needs.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the fully resolved process configuration.
type Config struct {
	Region               string
	HealthKitRawBucket   string
	DataTableName        string
	PATModelSize         PATModelSize
	PATModelPath         string
	MaxMetricsPerUpload  int
	JobLeaseSeconds      int
	CacheTTLSeconds      int
	EnableCaching        bool

	Database DatabaseConfig
	Redis    RedisConfig
}

// PATModelSize selects which PAT model variant to load.
type PATModelSize string

const (
	PATSmall  PATModelSize = "small"
	PATMedium PATModelSize = "medium"
	PATLarge  PATModelSize = "large"
)

// DatabaseConfig holds the connection parameters for the structured store.
type DatabaseConfig struct {
	Enabled                bool
	Host                   string
	Port                   string
	Database               string
	Username               string
	Password               string
	SSLMode                string
	MaxOpenConns           int
	MaxIdleConns           int
	ConnMaxLifetimeMinutes int
}

// DSN builds a libpq-style connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Database, d.Username, d.Password, d.SSLMode)
}

// RedisConfig configures the read-through cache and job queue client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Load resolves Config from the process environment, applying the defaults
// written below for any variable that is unset, empty or unparsable.
func Load() Config {
	return Config{
		Region:              getenv("REGION", "us-east-1"),
		HealthKitRawBucket:  getenv("HEALTHKIT_RAW_BUCKET", "clarity-healthkit-raw"),
		DataTableName:       getenv("DATA_TABLE_NAME", "clarity_health_data"),
		PATModelSize:        PATModelSize(getenv("PAT_MODEL_SIZE", "medium")),
		PATModelPath:        getenv("PAT_MODEL_PATH", ""),
		MaxMetricsPerUpload: getenvInt("MAX_METRICS_PER_UPLOAD", 10_000),
		JobLeaseSeconds:     getenvInt("JOB_LEASE_SECONDS", 600),
		CacheTTLSeconds:     getenvInt("CACHE_TTL_SECONDS", 300),
		EnableCaching:       getenvBool("ENABLE_CACHING", true),

		Database: DatabaseConfig{
			Enabled:                getenvBool("DB_ENABLED", true),
			Host:                   getenv("DB_HOST", "localhost"),
			Port:                   getenv("DB_PORT", "5432"),
			Database:               getenv("DB_NAME", "clarity"),
			Username:               getenv("DB_USER", "clarity"),
			Password:               getenv("DB_PASSWORD", ""),
			SSLMode:                getenv("DB_SSLMODE", "disable"),
			MaxOpenConns:           getenvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:           getenvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeMinutes: getenvInt("DB_CONN_MAX_LIFETIME_MINUTES", 5),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
	}
}
