package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for dupsweep.
type Config struct {
	OwnerID    string           `toml:"owner_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Sources    []SourceConfig   `toml:"sources"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
	Scan       ScanConfig       `toml:"scan"`
	Export     ExportConfig     `toml:"export"`
}

// EncryptionConfig holds paths to the age key pair used for audit exports.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// SourceConfig describes a storage provider to scan and clean.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type SourceConfig struct {
	Type     string `toml:"type"` // "memory", "local", or "s3"
	Name     string `toml:"name"`
	PageSize int    `toml:"page_size,omitempty"` // items per listing page; provider default when zero

	// Local-specific fields (only used when Type == "local")
	LocalRoot   string   `toml:"local_root,omitempty"`
	LocalIgnore []string `toml:"local_ignore,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
	S3TrashPrefix     string `toml:"s3_trash_prefix,omitempty"`
	S3Identity        string `toml:"s3_identity,omitempty"` // overrides the canonical user id lookup
}

// DatabaseConfig represents configuration for the record database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ScanConfig controls rescans.
type ScanConfig struct {
	// Strict makes a rescan all-or-nothing: one record that cannot be stored
	// aborts the scan and keeps the previous record set.
	Strict bool `toml:"strict"`
}

// ExportConfig sets where audit exports go when no explicit destination is given.
type ExportConfig struct {
	Dir      string `toml:"dir,omitempty"`
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(ownerID, baseDir string) *Config {
	return &Config{
		OwnerID: ownerID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "dupsweep.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "dupsweep.key"),
		},
		Export: ExportConfig{
			Dir: filepath.Join(baseDir, "exports"),
		},
	}
}

// Source returns the source with the given name, or the first configured
// source when name is empty.
func (c *Config) Source(name string) (SourceConfig, error) {
	if len(c.Sources) == 0 {
		return SourceConfig{}, fmt.Errorf("no sources configured")
	}
	if name == "" {
		return c.Sources[0], nil
	}
	for _, s := range c.Sources {
		if s.Name == name {
			return s, nil
		}
	}
	return SourceConfig{}, fmt.Errorf("no source named %q", name)
}

// Validate checks the fields every command relies on.
func (c *Config) Validate() error {
	if c.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	names := make(map[string]bool)
	for i, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("sources[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true

		switch s.Type {
		case "memory":
		case "local":
			if s.LocalRoot == "" {
				return fmt.Errorf("source %q: local_root is required", s.Name)
			}
		case "s3":
			if s.S3Bucket == "" {
				return fmt.Errorf("source %q: s3_bucket is required", s.Name)
			}
		default:
			return fmt.Errorf("source %q: unknown type %q", s.Name, s.Type)
		}
		if s.PageSize < 0 {
			return fmt.Errorf("source %q: page_size must not be negative", s.Name)
		}
	}
	return nil
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

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Source credentials may live in this file.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
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

// Init writes cfg to a new config file at path. It refuses to overwrite.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
