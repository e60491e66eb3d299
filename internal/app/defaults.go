package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - DUPSWEEP_CONFIG_PATH: config file location (default: ~/.config/dupsweep.toml)
//   - DUPSWEEP_HOME: base directory for dupsweep data (default: ~/.local/share/dupsweep)
func GetDefaults() (map[string]string, error) {
	configPath, err := envOrHome("DUPSWEEP_CONFIG_PATH", ".config", "dupsweep.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := envOrHome("DUPSWEEP_HOME", ".local", "share", "dupsweep")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"data_dir":    filepath.Join(baseDir, "db"),
	}, nil
}

// envOrHome returns the value of env if set, otherwise the path under the
// user's home directory.
func envOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
