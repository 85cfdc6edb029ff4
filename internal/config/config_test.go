package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("querypilot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":3000" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Database.MaxOpenConns != 10 {
		t.Fatalf("Database.MaxOpenConns = %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Schema.RefreshInterval != time.Hour {
		t.Fatalf("Schema.RefreshInterval = %v", cfg.Schema.RefreshInterval)
	}
	if cfg.Oracle.Temperature != 0.1 {
		t.Fatalf("Oracle.Temperature = %v", cfg.Oracle.Temperature)
	}
	if cfg.Executor.ExecuteTimeout != 30*time.Second {
		t.Fatalf("Executor.ExecuteTimeout = %v", cfg.Executor.ExecuteTimeout)
	}
	if cfg.Executor.ProbeTimeout != 5*time.Second {
		t.Fatalf("Executor.ProbeTimeout = %v", cfg.Executor.ProbeTimeout)
	}
	if cfg.Artifacts.Backend != "local" {
		t.Fatalf("Artifacts.Backend = %q", cfg.Artifacts.Backend)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"QUERYPILOT_PROFILE": "prod"})
	cfg, err := Load("querypilot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Artifacts.UseSSL {
		t.Fatal("Artifacts.UseSSL should default to true in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"QUERYPILOT_HTTP_ADDR":               ":9999",
		"QUERYPILOT_DB_DSN":                  "postgres://app@db:5432/app",
		"QUERYPILOT_SCHEMA_REFRESH_INTERVAL": "15m",
		"QUERYPILOT_ORACLE_MODEL":            "gpt-4o",
		"QUERYPILOT_ORACLE_MAX_TOKENS":       "512",
		"QUERYPILOT_EXECUTOR_URL":            "https://flows.example.com/webhook/execute-query",
		"QUERYPILOT_EXECUTOR_TIMEOUT":        "45s",
		"QUERYPILOT_ARTIFACTS_BACKEND":       "s3",
		"QUERYPILOT_ARTIFACTS_BUCKET":        "results",
		"QUERYPILOT_LOG_LEVEL":               "warn",
	})
	cfg, err := Load("querypilot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Database.DSN != "postgres://app@db:5432/app" {
		t.Fatalf("Database.DSN = %q", cfg.Database.DSN)
	}
	if cfg.Schema.RefreshInterval != 15*time.Minute {
		t.Fatalf("Schema.RefreshInterval = %v", cfg.Schema.RefreshInterval)
	}
	if cfg.Oracle.Model != "gpt-4o" {
		t.Fatalf("Oracle.Model = %q", cfg.Oracle.Model)
	}
	if cfg.Oracle.MaxTokens != 512 {
		t.Fatalf("Oracle.MaxTokens = %d", cfg.Oracle.MaxTokens)
	}
	if cfg.Executor.URL != "https://flows.example.com/webhook/execute-query" {
		t.Fatalf("Executor.URL = %q", cfg.Executor.URL)
	}
	if cfg.Executor.ExecuteTimeout != 45*time.Second {
		t.Fatalf("Executor.ExecuteTimeout = %v", cfg.Executor.ExecuteTimeout)
	}
	if cfg.Artifacts.Backend != "s3" {
		t.Fatalf("Artifacts.Backend = %q", cfg.Artifacts.Backend)
	}
	if cfg.Observability.LogLevel != slog.LevelWarn {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"profile":  {"QUERYPILOT_PROFILE": "staging"},
		"duration": {"QUERYPILOT_SCHEMA_REFRESH_INTERVAL": "soon"},
		"int":      {"QUERYPILOT_DB_MAX_OPEN_CONNS": "many"},
		"float":    {"QUERYPILOT_ORACLE_TEMPERATURE": "cold"},
		"level":    {"QUERYPILOT_LOG_LEVEL": "loud"},
		"backend":  {"QUERYPILOT_ARTIFACTS_BACKEND": "ftp"},
		"executor": {"QUERYPILOT_EXECUTOR_URL": " "},
	}
	for name, env := range cases {
		if _, err := Load("querypilot-api", mapLookup(env)); err == nil {
			t.Fatalf("Load() with invalid %s should fail", name)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
