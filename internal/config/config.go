// Package config loads process configuration from flags and
// environment variables, .env-first, the way the rest of this
// repository's command-line entry points do.
package config

import (
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full set of knobs cmd/sagaengine accepts.
type Config struct {
	Port              string
	DatabaseURL       string
	PlanFile          string
	RecoveryInterval  time.Duration
	RecoveryStaleness time.Duration
	RecoveryBatchSize int
	LogStoreCapacity  int
}

// getEnv reads key from the environment, falling back to defaultValue.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Load parses flags (seeded from environment defaults) into a Config.
// It loads a .env file first, ignoring its absence, matching local
// development convenience without requiring one in production.
func Load() *Config {
	_ = godotenv.Load()

	port := flag.String("port", getEnv("PORT", "8080"), "HTTP server port")
	dbURL := flag.String("database-url", getEnv("DATABASE_URL", ""), "SQLite path or postgres:// connection string; empty uses the in-memory store")
	planFile := flag.String("plan-file", getEnv("PLAN_FILE", ""), "Path to a step-plan YAML file; empty uses the built-in demo plan")
	recoveryIntervalSec := flag.Int("recovery-interval-seconds", 30, "Recovery sweep tick interval")
	recoveryStalenessSec := flag.Int("recovery-staleness-seconds", 120, "How long a saga must be untouched before the recovery sweep resubmits it")
	recoveryBatch := flag.Int("recovery-batch-size", 50, "Max sagas resubmitted per recovery sweep pass")
	logCapacity := flag.Int("log-store-capacity", 10000, "Max in-memory log entries retained")
	flag.Parse()

	return &Config{
		Port:              *port,
		DatabaseURL:       *dbURL,
		PlanFile:          *planFile,
		RecoveryInterval:  time.Duration(*recoveryIntervalSec) * time.Second,
		RecoveryStaleness: time.Duration(*recoveryStalenessSec) * time.Second,
		RecoveryBatchSize: *recoveryBatch,
		LogStoreCapacity:  *logCapacity,
	}
}
