package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	APIPort  string
	Sync     SyncConfig
	Print    PrintConfig
	Database DatabaseConfig
}

// SyncConfig holds host/client session configuration
type SyncConfig struct {
	// Port is the fixed well-known port the host listens on and
	// clients dial. All workstations in one warehouse share it.
	Port        int
	OriginLabel string
	DialTimeout time.Duration
}

// PrintConfig holds print pipeline configuration
type PrintConfig struct {
	SpoolDir string
	// PrinterID selects the spool subdirectory labels land in.
	PrinterID string
	// SettleDelay is the pause before a task's label is rendered, so
	// the visual representation can materialize on slow stations.
	SettleDelay time.Duration
	// PrintTimeout bounds a single print invocation. Expired prints
	// count as failures; there is no retry either way.
	PrintTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	DataDir  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	origin := os.Getenv("ORIGIN_LABEL")
	if origin == "" {
		if hn, err := os.Hostname(); err == nil {
			origin = hn
		} else {
			origin = "workstation"
		}
	}

	return &Config{
		APIPort: getEnv("PORT", "3410"),
		Sync: SyncConfig{
			Port:        getEnvInt("SYNC_PORT", 9610),
			OriginLabel: origin,
			DialTimeout: getEnvDuration("SYNC_DIAL_TIMEOUT_MS", 5000),
		},
		Print: PrintConfig{
			SpoolDir:     getEnv("SPOOL_DIR", "./spool"),
			PrinterID:    getEnv("PRINTER_ID", "default"),
			SettleDelay:  getEnvDuration("PRINT_SETTLE_DELAY_MS", 150),
			PrintTimeout: getEnvDuration("PRINT_TIMEOUT_MS", 30000),
		},
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "quicklabel"),
			DataDir:  getEnv("DATA_DIR", "./data"),
		},
	}, nil
}

// getEnv gets environment variable with default value
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

func getEnvDuration(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}
