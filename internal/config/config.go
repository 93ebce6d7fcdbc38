package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Database holds the relational store connection settings
type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// Config is the environment-driven configuration of the orchestration core
type Config struct {
	Database Database

	// SystemPrincipalUsername is the identity automatic lifecycle
	// promotions run as
	SystemPrincipalUsername string

	// StallSweepSchedule is the cron spec for the stalled-process sweep
	StallSweepSchedule string

	// StallGracePeriod exempts young activity instances from the sweep
	StallGracePeriod time.Duration
}

// Load reads configuration from the environment, after loading a .env file
// if one is present in the working directory.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠️ Failed to load .env file: %v", err)
	}

	return &Config{
		Database: Database{
			Host:     getEnv("DB_HOST", "127.0.0.1"),
			Port:     getEnv("DB_PORT", "4000"),
			User:     getEnv("DB_USER", "root"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnv("DB_DATABASE", "yuantus"),
		},
		SystemPrincipalUsername: getEnv("SYSTEM_PRINCIPAL", "admin"),
		StallSweepSchedule:      getEnv("STALL_SWEEP_SCHEDULE", "@every 5m"),
		StallGracePeriod:        getDurationEnv("STALL_GRACE_PERIOD", 30*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️ Invalid %s %q, using %s: %v", key, v, fallback, err)
		return fallback
	}
	return d
}
