package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for porv.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	TempDir    string           `toml:"temp_dir"`
	Server     ServerConfig     `toml:"server"`
	Fetch      FetchConfig      `toml:"fetch"`
	Prover     ProverConfig     `toml:"prover"`
	Queue      QueueConfig      `toml:"queue"`
	Cache      CacheConfig      `toml:"cache"`
	Database   DatabaseConfig   `toml:"database"`
	Vault      VaultConfig      `toml:"vault"`
	Encryption EncryptionConfig `toml:"encryption"`
	Events     EventsConfig     `toml:"events"`
}

// ServerConfig holds the HTTP listener settings and API keys.
type ServerConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	APIKey      string `toml:"api_key"`
	AdminAPIKey string `toml:"admin_api_key"`
}

// FetchConfig bounds archive downloads.
type FetchConfig struct {
	TimeoutSeconds    int   `toml:"timeout_seconds"`
	MaxSizeBytes      int64 `toml:"max_size_bytes"`
	AllowPrivateHosts bool  `toml:"allow_private_hosts"` // development and test only
}

// ProverConfig configures the external verification binary.
type ProverConfig struct {
	Binary               string `toml:"binary"`
	VerifyTimeoutSeconds int    `toml:"verify_timeout_seconds"`
	UpdateCommand        string `toml:"update_command,omitempty"`
}

// QueueConfig bounds background verification work.
type QueueConfig struct {
	Concurrency int `toml:"concurrency"`
}

// CacheConfig bounds the response cache.
type CacheConfig struct {
	MaxEntries int `toml:"max_entries"`
	TTLSeconds int `toml:"ttl_seconds"`
}

// DatabaseConfig represents configuration for the verification database.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// VaultConfig represents configuration for the archive retention backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "none", "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used to encrypt retained
// archives.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none", "age", or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// EventsConfig configures completion-event publishing. An empty URL disables
// it.
type EventsConfig struct {
	NATSURL string `toml:"nats_url,omitempty"`
	Subject string `toml:"subject,omitempty"`
}

// NewConfig creates a new Config with the provided base directory and
// defaults suitable for a local deployment.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		TempDir: filepath.Join(baseDir, "tmp"),
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 3000,
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 120,
			MaxSizeBytes:   150 * 1024 * 1024,
		},
		Prover: ProverConfig{
			Binary:               "plonky2_por",
			VerifyTimeoutSeconds: 300,
		},
		Queue: QueueConfig{Concurrency: 2},
		Cache: CacheConfig{
			MaxEntries: 500,
			TTLSeconds: 3600,
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Vault: VaultConfig{Type: "none"},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "porv.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "porv.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// WriteToFile writes a Config to the specified file path, creating parent
// directories as needed.
func WriteToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := WriteToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
