package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		// An explicit path that does not exist should fail loudly; only the
		// default search path tolerates absence.
		t.Fatalf("expected error for explicit missing file")
	}

	dir := t.TempDir()
	orig, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer func() { _ = os.Chdir(orig) }()

	cfg, err = LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig without file: %v", err)
	}
	if cfg.Server.Address != ":10010" {
		t.Fatalf("expected default address, got %q", cfg.Server.Address)
	}
	if cfg.Redis.TriggerList != "research:trigger" {
		t.Fatalf("expected default trigger list, got %q", cfg.Redis.TriggerList)
	}
	if cfg.Research.ProviderTimeout != 60*time.Second || cfg.Research.MaxTokens != 4096 {
		t.Fatalf("unexpected research defaults: %+v", cfg.Research)
	}
	if cfg.VectorStore.MaxChunks != 10000 || cfg.VectorStore.Index != "vectorsearch" {
		t.Fatalf("unexpected vector store defaults: %+v", cfg.VectorStore)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  address: ":8080"
  jwt_secret: "s3cret"
postgres:
  host: db.internal
  dbname: docresearch
redis:
  host: cache.internal
  port: "6379"
vector_store:
  endpoint: https://search.example.net
  api_key: vs-key
research:
  max_tokens: 1024
  temperature: 0.3
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":8080" || cfg.Server.JWTSecret != "s3cret" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Redis.Addr() != "cache.internal:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.Redis.Addr())
	}
	if cfg.Research.MaxTokens != 1024 || cfg.Research.Temperature != 0.3 {
		t.Fatalf("unexpected research config: %+v", cfg.Research)
	}

	dsn, err := cfg.Postgres.DSN()
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	if dsn != "postgres://:@db.internal:5432/docresearch?sslmode=disable" {
		t.Fatalf("unexpected dsn %q", dsn)
	}
}

func TestPostgresDSNPrefersURL(t *testing.T) {
	p := PostgresConfig{URL: "postgres://u:p@host:5432/db", Host: "other"}
	dsn, err := p.DSN()
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	if dsn != "postgres://u:p@host:5432/db" {
		t.Fatalf("unexpected dsn %q", dsn)
	}

	if _, err := (PostgresConfig{}).DSN(); err == nil {
		t.Fatalf("expected error when nothing is configured")
	}
}

func TestTelemetryValidate(t *testing.T) {
	if err := (TelemetryConfig{Enabled: true, MetricsPort: 0}).Validate(); err == nil {
		t.Fatalf("expected validation error for port 0")
	}
	if err := (TelemetryConfig{Enabled: false}).Validate(); err != nil {
		t.Fatalf("disabled telemetry must validate: %v", err)
	}
}
