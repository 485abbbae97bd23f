package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	dirName  = ".fastgate"
	fileName = "config.json"
)

// DataDir returns ~/.fastgate, falling back to a relative path when the home
// directory cannot be resolved.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return dirName
	}
	return filepath.Join(home, dirName)
}

// ConfigPath returns the default config file location inside DataDir.
func ConfigPath() string {
	return filepath.Join(DataDir(), fileName)
}

// Load reads the config at path (ConfigPath when empty). The loader never
// blocks startup on config problems: a missing file yields the defaults, and
// an unparseable file logs a warning and yields the defaults so a broken
// hand-edit cannot wedge the CLI.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &cfg, nil
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Unmarshal over the populated defaults so absent keys keep them.
	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Warn("config is not valid JSON, using defaults", "path", path, "err", err)
		cfg = DefaultConfig()
	}
	return &cfg, nil
}

// Save writes cfg to path (ConfigPath when empty) as indented JSON with a
// trailing newline. The file carries provider credentials, hence 0600.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
