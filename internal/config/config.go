package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	S3Bucket      string
	S3Region      string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	RawPrefix     string
	CuratedPrefix string

	ListenAddr    string
	TLSListenAddr string
	LogFormat     string

	BatchSize       int
	ParseWorkers    int
	RateLimit       int
	RateLimitWindow time.Duration
	Retention       time.Duration

	ReportsFile string

	TailPath      string
	TailBatchSize int
	TailBatchAge  time.Duration

	SourceTimeout  time.Duration
	SourceUser     string
	SourcePassword string

	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     string
	PostgresDatabase string
	PostgresSSLMode  string
}

func Load() *Config {
	cfg := &Config{
		S3Bucket:         getEnv("S3_BUCKET", "access-logs"),
		S3Region:         getEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		S3AccessKey:      mustGetEnv("AWS_ACCESS_KEY_ID"),
		S3SecretKey:      mustGetEnv("AWS_SECRET_ACCESS_KEY"),
		RawPrefix:        getEnv("RAW_PREFIX", "raw/"),
		CuratedPrefix:    getEnv("CURATED_PREFIX", "curated/"),
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
		TLSListenAddr:    getEnv("TLS_LISTEN_ADDR", ""),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		BatchSize:        getEnvInt("BATCH_SIZE", 1000),
		ParseWorkers:     getEnvInt("PARSE_WORKERS", 4),
		RateLimit:        getEnvInt("RATE_LIMIT", 100),
		RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		Retention:        getEnvDuration("RETENTION", 30*24*time.Hour),
		ReportsFile:      getEnv("REPORTS_FILE", ""),
		TailPath:         getEnv("TAIL_PATH", ""),
		TailBatchSize:    getEnvInt("TAIL_BATCH_SIZE", 5000),
		TailBatchAge:     getEnvDuration("TAIL_BATCH_AGE", 30*time.Second),
		SourceTimeout:    getEnvDuration("SOURCE_TIMEOUT", 30*time.Second),
		SourceUser:       getEnv("SOURCE_USER", ""),
		SourcePassword:   getEnv("SOURCE_PASSWORD", ""),
		PostgresUser:     getEnv("POSTGRES_USER", "logmill"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDatabase: getEnv("POSTGRES_DATABASE", "logmill"),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic("Missing required environment variable: " + key)
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
