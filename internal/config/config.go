// Package config loads the environment-variable surface shared by
// cmd/idp and cmd/migr (spec §6), grounded on the teacher's
// internal/config/config.go getEnv/Load pattern.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full external-interface surface (spec §6).
type Config struct {
	IDPDatabaseURL     string
	WebsiteDatabaseURL string
	WebsiteBaseURL     string

	BrokerURL        string
	ResultBackendURL string

	QueueHigh    string
	QueueDefault string
	QueueLow     string

	LogFile               string
	ConcurrencyEnabled    bool
	LegacyXMLRoot         string
	ArticleMetaCollection string

	HTTPTimeout    time.Duration
	HTTPMaxRetries int

	V3AllocMaxAttempts int
	V2AllocMaxAttempts int

	TablePrefix string
}

// Load reads the environment, applying a .env file first if present
// (teacher's `_ = godotenv.Load()` in cmd/server/main.go — errors are
// deliberately ignored, since running without a .env file is normal in
// production).
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		IDPDatabaseURL:     getEnv("IDP_DATABASE_URL", "postgres://localhost:5432/idp?sslmode=disable"),
		WebsiteDatabaseURL: getEnv("WEBSITE_DATABASE_URL", "postgres://localhost:5432/website?sslmode=disable"),
		WebsiteBaseURL:     getEnv("WEBSITE_BASE_URL", "https://new.scielo.br"),

		BrokerURL:        getEnv("BROKER_URL", "redis://localhost:6379/0"),
		ResultBackendURL: getEnv("RESULT_BACKEND_URL", "redis://localhost:6379/1"),

		QueueHigh:    getEnv("QUEUE_HIGH", "high"),
		QueueDefault: getEnv("QUEUE_DEFAULT", "default"),
		QueueLow:     getEnv("QUEUE_LOW", "low"),

		LogFile:               getEnv("LOG_FILE", "./logs"),
		ConcurrencyEnabled:    getEnvBool("CONCURRENCY_ENABLED", true),
		LegacyXMLRoot:         getEnv("LEGACY_XML_ROOT", "./legacy_xml"),
		ArticleMetaCollection: getEnv("ARTICLEMETA_COLLECTION", "scl"),

		HTTPTimeout:    getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		HTTPMaxRetries: getEnvInt("HTTP_MAX_RETRIES", 3),

		V3AllocMaxAttempts: getEnvInt("V3_ALLOC_MAX_ATTEMPTS", 64),
		V2AllocMaxAttempts: getEnvInt("V2_ALLOC_MAX_ATTEMPTS", 5),

		TablePrefix: getTablePrefix(getEnv("ENVIRONMENT", "dev")),
	}
}

// getTablePrefix mirrors the teacher's dev_/test_/prod_ table prefix
// derivation, with a manual TABLE_PREFIX override.
func getTablePrefix(env string) string {
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}
	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
