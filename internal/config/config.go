package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	EngineDBPath      string
	LedgerDBPath      string
	CustodyServiceURL string
	OwnerAccount      string
	SchedulerAccount  string
	RebalanceSchedule string
	LogLevel          string
	Port              int
	DevMode           bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnvAsInt("PORT", 8080),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		EngineDBPath:      getEnv("ENGINE_DB_PATH", "./data/engine.db"),
		LedgerDBPath:      getEnv("LEDGER_DB_PATH", "./data/ledger.db"),
		CustodyServiceURL: getEnv("CUSTODY_SERVICE_URL", ""),
		OwnerAccount:      getEnv("OWNER_ACCOUNT", ""),
		SchedulerAccount:  getEnv("SCHEDULER_ACCOUNT", "rebalance-agent"),
		RebalanceSchedule: getEnv("REBALANCE_CHECK_SCHEDULE", "@every 5m"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.EngineDBPath == "" {
		return fmt.Errorf("ENGINE_DB_PATH is required")
	}
	if c.LedgerDBPath == "" {
		return fmt.Errorf("LEDGER_DB_PATH is required")
	}
	if c.OwnerAccount == "" {
		return fmt.Errorf("OWNER_ACCOUNT is required")
	}
	// CustodyServiceURL may be empty: dev mode falls back to unbacked
	// transfers, which production refuses
	if c.CustodyServiceURL == "" && !c.DevMode {
		return fmt.Errorf("CUSTODY_SERVICE_URL is required outside dev mode")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
