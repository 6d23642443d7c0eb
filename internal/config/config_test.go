package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir: "/srv/porv",
		LogDir:  "/srv/porv/log",
		TempDir: "/srv/porv/tmp",
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			APIKey:      "submit-key",
			AdminAPIKey: "admin-key",
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 120,
			MaxSizeBytes:   150 * 1024 * 1024,
		},
		Prover: ProverConfig{
			Binary:               "plonky2_por",
			VerifyTimeoutSeconds: 300,
			UpdateCommand:        "update-prover.sh",
		},
		Queue:    QueueConfig{Concurrency: 2},
		Cache:    CacheConfig{MaxEntries: 500, TTLSeconds: 3600},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/srv/porv/data"},
		Vault:    VaultConfig{Type: "filesystem", Name: "local", FSVaultRoot: "/srv/porv/vault"},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  "/srv/porv/keys/porv.pub",
			PrivateKeyPath: "/srv/porv/keys/porv.key",
		},
		Events: EventsConfig{NATSURL: "nats://localhost:4222", Subject: "por.events"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", got.Server.Port, 8080)
	}
	if got.Server.AdminAPIKey != "admin-key" {
		t.Errorf("Server.AdminAPIKey = %q, want %q", got.Server.AdminAPIKey, "admin-key")
	}
	if got.Fetch.MaxSizeBytes != original.Fetch.MaxSizeBytes {
		t.Errorf("Fetch.MaxSizeBytes = %d, want %d", got.Fetch.MaxSizeBytes, original.Fetch.MaxSizeBytes)
	}
	if got.Prover.Binary != "plonky2_por" {
		t.Errorf("Prover.Binary = %q, want %q", got.Prover.Binary, "plonky2_por")
	}
	if got.Queue.Concurrency != 2 {
		t.Errorf("Queue.Concurrency = %d, want %d", got.Queue.Concurrency, 2)
	}
	if got.Cache.TTLSeconds != 3600 {
		t.Errorf("Cache.TTLSeconds = %d, want %d", got.Cache.TTLSeconds, 3600)
	}
	if got.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want %q", got.Database.Type, "sqlite")
	}
	if got.Vault.FSVaultRoot != "/srv/porv/vault" {
		t.Errorf("Vault.FSVaultRoot = %q, want %q", got.Vault.FSVaultRoot, "/srv/porv/vault")
	}
	if got.Encryption.PublicKeyPath != original.Encryption.PublicKeyPath {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", got.Encryption.PublicKeyPath, original.Encryption.PublicKeyPath)
	}
	if got.Events.NATSURL != "nats://localhost:4222" {
		t.Errorf("Events.NATSURL = %q, want %q", got.Events.NATSURL, "nats://localhost:4222")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/porv")

	if cfg.BaseDir != "/data/porv" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/porv")
	}
	if cfg.LogDir != "/data/porv/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/porv/log")
	}
	if cfg.Queue.Concurrency != 2 {
		t.Errorf("Queue.Concurrency = %d, want 2", cfg.Queue.Concurrency)
	}
	if cfg.Fetch.TimeoutSeconds != 120 {
		t.Errorf("Fetch.TimeoutSeconds = %d, want 120", cfg.Fetch.TimeoutSeconds)
	}
	if cfg.Fetch.MaxSizeBytes != 150*1024*1024 {
		t.Errorf("Fetch.MaxSizeBytes = %d, want %d", cfg.Fetch.MaxSizeBytes, 150*1024*1024)
	}
	if cfg.Prover.Binary != "plonky2_por" {
		t.Errorf("Prover.Binary = %q, want %q", cfg.Prover.Binary, "plonky2_por")
	}
	if cfg.Encryption.PublicKeyPath != "/data/porv/keys/porv.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/porv/keys/porv.pub")
	}
	if cfg.Encryption.PrivateKeyPath != "/data/porv/keys/porv.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", cfg.Encryption.PrivateKeyPath, "/data/porv/keys/porv.key")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "porv.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "porv.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "porv.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/porv.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
