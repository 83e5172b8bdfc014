package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL connection settings.
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

// DSN builds the connection string for lib/pq.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config is the full service configuration, loaded once at startup.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig

	HTTP struct {
		Addr string
	}

	// Bayrol vendor cloud settings.
	Bayrol struct {
		MQTTHost string // broker host, websockets over TLS
		MQTTPort int
		APIURL   string // app-link code exchange endpoint
	}

	Alarm struct {
		// Rule cache in Redis: 5 minute TTL, invalidated on rule mutation.
		RuleCacheTTL time.Duration
	}

	Notify struct {
		GlobalWebhookURL string // optional, receives every triggered alarm
		EmailWebhookURL  string // optional, email relay endpoint
		Timeout          time.Duration
	}

	History struct {
		QueueKey      string
		BatchSize     int
		FlushInterval time.Duration // normal interval
		FastInterval  time.Duration // used while queue depth > HighWater
		HighWater     int64
	}

	Auth struct {
		MasterAPIKey string // optional, bypasses key lookup
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "bayrol")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Bayrol.MQTTHost = getEnv("BAYROL_MQTT_HOST", "www.bayrol-poolaccess.de")
	cfg.Bayrol.MQTTPort = getEnvInt("BAYROL_MQTT_PORT", 8083)
	cfg.Bayrol.APIURL = getEnv("BAYROL_API_URL", "https://www.bayrol-poolaccess.de/api/")

	cfg.Alarm.RuleCacheTTL = getEnvDuration("ALARM_RULE_CACHE_TTL", 5*time.Minute)

	cfg.Notify.GlobalWebhookURL = getEnv("ALARM_WEBHOOK_URL", "")
	cfg.Notify.EmailWebhookURL = getEnv("EMAIL_WEBHOOK_URL", "")
	cfg.Notify.Timeout = getEnvDuration("NOTIFY_TIMEOUT", 30*time.Second)

	cfg.History.QueueKey = getEnv("HISTORY_QUEUE_KEY", "queue:alarm_history")
	cfg.History.BatchSize = getEnvInt("HISTORY_BATCH_SIZE", 100)
	cfg.History.FlushInterval = getEnvDuration("HISTORY_FLUSH_INTERVAL", 30*time.Second)
	cfg.History.FastInterval = getEnvDuration("HISTORY_FAST_INTERVAL", 5*time.Second)
	cfg.History.HighWater = int64(getEnvInt("HISTORY_HIGH_WATER", 1000))

	cfg.Auth.MasterAPIKey = getEnv("MASTER_API_KEY", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
