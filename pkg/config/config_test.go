package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.ServerPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	t.Setenv("LOADPULSE_PORT", "9090")
	t.Setenv("LOADPULSE_LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.ServerPort != "9090" {
		t.Errorf("expected overridden port 9090, got %s", cfg.ServerPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected overridden log level debug, got %s", cfg.LogLevel)
	}
}

func TestGetEnvIntFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("LOADPULSE_MAX_PROCS", "not-a-number")
	cfg := Load()
	if cfg.MaxProcs != 0 {
		t.Errorf("expected fallback 0 on invalid int env var, got %d", cfg.MaxProcs)
	}
}
