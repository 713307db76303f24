package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath returns ~/.musicnews/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".musicnews", "config.yaml"), nil
}

// Load builds the configuration: defaults, then the YAML file, then
// environment overrides. An explicit path must exist; with an empty path the
// default file is used when present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		defaultPath, err := DefaultPath()
		if err == nil {
			if _, statErr := os.Stat(defaultPath); statErr == nil {
				path = defaultPath
			}
		}
	}

	if path != "" {
		if err := readFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Pages.Selectors = cfg.Pages.Selectors.WithDefaults()
	return nil
}

// LoadEnvFiles loads .env.local and then .env from dir into the process
// environment. Variables that are already set win, so .env.local takes
// precedence over .env. Missing files are skipped.
func LoadEnvFiles(dir string) error {
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OSHIRAKU_API_KEY"); v != "" {
		cfg.Catalog.APIKey = v
	}
	if v := os.Getenv("SYNCPOWER_CLIENT_ID"); v != "" {
		cfg.Auth.ClientID = v
	}
	if v := os.Getenv("SYNCPOWER_CLIENT_SECRET"); v != "" {
		cfg.Auth.ClientSecret = v
	}
	if v := os.Getenv("MUSICNEWS_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("MUSICNEWS_ALLOWED_ORIGIN"); v != "" {
		cfg.Server.AllowedOrigin = v
	}
	if v := os.Getenv("MUSICNEWS_STATIC_URLS"); v != "" {
		cfg.Pages.Source = PageSourceFile
		cfg.Pages.File = v
	}
	if v := os.Getenv("MUSICNEWS_PAGES_DB"); v != "" {
		cfg.Pages.Source = PageSourceSQLite
		cfg.Pages.Database = v
	}
	if v := os.Getenv("MUSICNEWS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
