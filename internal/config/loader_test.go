package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved path %q, want %q", resolved, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Addr != ":3000" || cfg.HistoryLimit != 100 || cfg.MaxUploadBytes != 50<<20 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("addr: \":9090\"\nhistory_limit: 25\nstorage_timeout: 2s\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FAMCHAT_HISTORY_LIMIT", "40")
	t.Setenv("FAMCHAT_NATS_URL", "nats://example:4222")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("file value not applied: %q", cfg.Addr)
	}
	if cfg.HistoryLimit != 40 {
		t.Fatalf("env should override file, got %d", cfg.HistoryLimit)
	}
	if cfg.StorageTimeout != 2*time.Second {
		t.Fatalf("unexpected storage timeout %v", cfg.StorageTimeout)
	}
	if cfg.NATSURL != "nats://example:4222" {
		t.Fatalf("unexpected nats url %q", cfg.NATSURL)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage_driver: postgres\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, _, err := Load(nil, path); err == nil {
		t.Fatalf("expected validation error for unknown storage driver")
	}
}

func TestValidateRequiresMongoURI(t *testing.T) {
	cfg := Default()
	cfg.StorageDriver = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("mongo driver without uri must fail")
	}
	cfg.MongoURI = "mongodb://localhost:27017"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateFromOverridesNonZero(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":1234", LogLevel: "debug"})
	if cfg.Addr != ":1234" || cfg.LogLevel != "debug" {
		t.Fatalf("override not applied: %+v", cfg)
	}
	if cfg.StorageDriver != "sqlite" {
		t.Fatalf("zero values must not override: %q", cfg.StorageDriver)
	}
}
