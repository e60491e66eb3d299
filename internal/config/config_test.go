package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		OwnerID: "alice",
		BaseDir: "/home/alice/.local/share/dupsweep",
		LogDir:  "/home/alice/.local/share/dupsweep/log",
		Sources: []SourceConfig{
			{Type: "local", Name: "photos", LocalRoot: "/srv/photos", LocalIgnore: []string{"*.tmp", ".cache"}, PageSize: 250},
			{Type: "s3", Name: "archive", S3Bucket: "bucket", S3Prefix: "media/", S3Region: "eu-west-1", S3TrashPrefix: ".trash/"},
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  "/home/alice/.local/share/dupsweep/keys/dupsweep.pub",
			PrivateKeyPath: "/home/alice/.local/share/dupsweep/keys/dupsweep.key",
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/alice/.local/share/dupsweep/db"},
		Scan:     ScanConfig{Strict: true},
		Export:   ExportConfig{S3Bucket: "audit", S3Prefix: "exports/"},
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

	if got.OwnerID != original.OwnerID {
		t.Errorf("OwnerID = %q, want %q", got.OwnerID, original.OwnerID)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if len(got.Sources) != 2 {
		t.Fatalf("len(Sources) = %d, want 2", len(got.Sources))
	}
	local := got.Sources[0]
	if local.Type != "local" || local.LocalRoot != "/srv/photos" || local.PageSize != 250 {
		t.Errorf("Sources[0] = %+v", local)
	}
	if len(local.LocalIgnore) != 2 {
		t.Errorf("len(LocalIgnore) = %d, want 2", len(local.LocalIgnore))
	}
	s3 := got.Sources[1]
	if s3.S3Bucket != "bucket" || s3.S3Region != "eu-west-1" || s3.S3TrashPrefix != ".trash/" {
		t.Errorf("Sources[1] = %+v", s3)
	}
	if got.Encryption.PrivateKeyPath != original.Encryption.PrivateKeyPath {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", got.Encryption.PrivateKeyPath, original.Encryption.PrivateKeyPath)
	}
	if got.Database != original.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, original.Database)
	}
	if !got.Scan.Strict {
		t.Error("Scan.Strict = false, want true")
	}
	if got.Export != original.Export {
		t.Errorf("Export = %+v, want %+v", got.Export, original.Export)
	}
}

func TestManager_Read_Sections(t *testing.T) {
	input := `
owner_id = "bob"

[database]
type = "memory"

[[sources]]
type = "memory"
name = "scratch"

[scan]
strict = false
`
	got, err := (&Manager{}).Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.OwnerID != "bob" || got.Database.Type != "memory" {
		t.Errorf("Read() = %+v", got)
	}
	if len(got.Sources) != 1 || got.Sources[0].Name != "scratch" {
		t.Errorf("Sources = %+v", got.Sources)
	}

	if _, err := (&Manager{}).Read(strings.NewReader("owner_id = ")); err == nil {
		t.Error("Read() expected error for malformed TOML")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("owner-1", "/data/dupsweep")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"OwnerID", cfg.OwnerID, "owner-1"},
		{"BaseDir", cfg.BaseDir, "/data/dupsweep"},
		{"LogDir", cfg.LogDir, "/data/dupsweep/log"},
		{"Database.Type", cfg.Database.Type, "sqlite"},
		{"Database.DataDir", cfg.Database.DataDir, "/data/dupsweep/db"},
		{"Encryption.PublicKeyPath", cfg.Encryption.PublicKeyPath, "/data/dupsweep/keys/dupsweep.pub"},
		{"Encryption.PrivateKeyPath", cfg.Encryption.PrivateKeyPath, "/data/dupsweep/keys/dupsweep.key"},
		{"Export.Dir", cfg.Export.Dir, "/data/dupsweep/exports"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestConfig_Source(t *testing.T) {
	cfg := &Config{Sources: []SourceConfig{
		{Type: "memory", Name: "a"},
		{Type: "memory", Name: "b"},
	}}

	got, err := cfg.Source("")
	if err != nil || got.Name != "a" {
		t.Errorf("Source(\"\") = %+v, %v, want first source", got, err)
	}
	got, err = cfg.Source("b")
	if err != nil || got.Name != "b" {
		t.Errorf("Source(b) = %+v, %v", got, err)
	}
	if _, err := cfg.Source("c"); err == nil {
		t.Error("Source(c) expected error for unknown name")
	}
	if _, err := (&Config{}).Source(""); err == nil {
		t.Error("Source() expected error with no sources")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			OwnerID: "o",
			Sources: []SourceConfig{
				{Type: "memory", Name: "m"},
				{Type: "local", Name: "l", LocalRoot: "/tmp"},
				{Type: "s3", Name: "s", S3Bucket: "b"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing owner", func(c *Config) { c.OwnerID = "" }, "owner_id"},
		{"missing name", func(c *Config) { c.Sources[0].Name = "" }, "name is required"},
		{"duplicate name", func(c *Config) { c.Sources[1].Name = "m" }, "duplicate name"},
		{"local without root", func(c *Config) { c.Sources[1].LocalRoot = "" }, "local_root"},
		{"s3 without bucket", func(c *Config) { c.Sources[2].S3Bucket = "" }, "s3_bucket"},
		{"unknown type", func(c *Config) { c.Sources[0].Type = "ftp" }, "unknown type"},
		{"negative page size", func(c *Config) { c.Sources[0].PageSize = -1 }, "page_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file readable only by owner", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nested", "dupsweep.toml")
		cfg := NewConfig("o1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("permissions = %o, want 600", perm)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "dupsweep.toml")
		cfg := NewConfig("o1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "dupsweep.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.OwnerID != "read-test" {
			t.Errorf("OwnerID = %q, want %q", got.OwnerID, "read-test")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/dupsweep.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
