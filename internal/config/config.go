// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the planner database (always absolute)
	Port     int
	DevMode  bool
	LogLevel string

	// MonteCarloPaths is the default path count for simulation-backed
	// planning methods.
	MonteCarloPaths int
	// MaxPlanIterations bounds the planner's convergence loop.
	MaxPlanIterations int
	// StatsRefreshSchedule is the cron expression for reloading asset
	// class statistics from the database.
	StatsRefreshSchedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PLANNER_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:              absDataDir,
		Port:                 getEnvAsInt("PLANNER_PORT", 8001),
		DevMode:              getEnvAsBool("DEV_MODE", false),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		MonteCarloPaths:      getEnvAsInt("PLANNER_MC_PATHS", 1000),
		MaxPlanIterations:    getEnvAsInt("PLANNER_MAX_ITERATIONS", 20),
		StatsRefreshSchedule: getEnv("PLANNER_STATS_REFRESH_CRON", "0 3 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MonteCarloPaths <= 0 {
		return fmt.Errorf("monte carlo path count must be positive, got %d", c.MonteCarloPaths)
	}
	if c.MaxPlanIterations <= 0 {
		return fmt.Errorf("max plan iterations must be positive, got %d", c.MaxPlanIterations)
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
