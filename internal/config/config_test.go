package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var keys = []string{
	"HTTP_ADDR", "PUBLIC_ORIGIN", "RESOLVER_URL", "RESOLVER_TIMEOUT", "STORE_DRIVER", "DB_PATH",
	"DB_DSN", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "RESOLVE_CACHE_TTL", "SHUTDOWN_TIMEOUT",
	"LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name         string
		env          map[string]string
		validateFunc func(t *testing.T, cfg *Config, err error)
	}{
		{
			name: "defaults",
			validateFunc: func(t *testing.T, cfg *Config, err error) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if cfg.HTTPAddr != ":8080" || cfg.StoreDriver != DriverSQLite {
					t.Errorf("unexpected defaults: %+v", cfg)
				}
				if cfg.ResolverTimeout != 15*time.Second || cfg.ResolveCacheTTL != 24*time.Hour {
					t.Errorf("unexpected durations: %+v", cfg)
				}
				if cfg.RedisAddr != "" {
					t.Errorf("cache enabled by default: %q", cfg.RedisAddr)
				}
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"STORE_DRIVER":      "Postgres",
				"DB_DSN":            "postgres://localhost/split",
				"REDIS_DB":          "3",
				"RESOLVE_CACHE_TTL": "90s",
			},
			validateFunc: func(t *testing.T, cfg *Config, err error) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if cfg.StoreDriver != DriverPostgres || cfg.RedisDB != 3 || cfg.ResolveCacheTTL != 90*time.Second {
					t.Errorf("overrides not applied: %+v", cfg)
				}
			},
		},
		{
			name: "postgres without dsn",
			env:  map[string]string{"STORE_DRIVER": "postgres"},
			validateFunc: func(t *testing.T, cfg *Config, err error) {
				if err == nil || !strings.Contains(err.Error(), "DB_DSN") {
					t.Errorf("expected DB_DSN error, got %v", err)
				}
			},
		},
		{
			name: "unknown driver",
			env:  map[string]string{"STORE_DRIVER": "mongo"},
			validateFunc: func(t *testing.T, cfg *Config, err error) {
				if err == nil {
					t.Error("expected error")
				}
			},
		},
		{
			name: "bad duration",
			env:  map[string]string{"SHUTDOWN_TIMEOUT": "soon"},
			validateFunc: func(t *testing.T, cfg *Config, err error) {
				if err == nil || !strings.Contains(err.Error(), "SHUTDOWN_TIMEOUT") {
					t.Errorf("expected SHUTDOWN_TIMEOUT error, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			tt.validateFunc(t, cfg, err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("RESOLVER_URL=https://resolver.example/api\nHTTP_ADDR=:9000\n"), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Setenv("HTTP_ADDR", ":7000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ResolverURL != "https://resolver.example/api" {
		t.Errorf("ResolverURL = %q", cfg.ResolverURL)
	}
	if cfg.HTTPAddr != ":7000" {
		t.Errorf("HTTPAddr = %q, environment should win", cfg.HTTPAddr)
	}
	os.Unsetenv("RESOLVER_URL")
}
