// Package config loads process-wide settings for the API server from
// environment variables, with development defaults for anything unset.
package config

import (
	"os"
	"strconv"
)

// Config holds the server's environment-driven settings.
type Config struct {
	Environment string
	ServerPort  string
	LogLevel    string
	MaxProcs    int
}

// Load reads Config from the environment, falling back to development
// defaults for anything unset.
func Load() *Config {
	return &Config{
		Environment: getEnv("LOADPULSE_ENV", "development"),
		ServerPort:  getEnv("LOADPULSE_PORT", "8080"),
		LogLevel:    getEnv("LOADPULSE_LOG_LEVEL", "info"),
		MaxProcs:    getEnvInt("LOADPULSE_MAX_PROCS", 0),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
