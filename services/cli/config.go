package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk cardsctl configuration.
type Config struct {
	APIBaseURL   string `yaml:"api_base_url"`
	AccessToken  string `yaml:"access_token,omitempty"`
	RefreshToken string `yaml:"refresh_token,omitempty"`
	Model        string `yaml:"model,omitempty"`
	SnapshotPath string `yaml:"snapshot_path,omitempty"`
	// AgeIdentity encrypts the review snapshot at rest when set.
	AgeIdentity string `yaml:"age_identity,omitempty"`
}

// DefaultConfigPath is where cardsctl looks without --config.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cardsctl", "config.yaml"), nil
}

// LoadConfig reads the config file; a missing file yields defaults.
func LoadConfig(path string) (Config, error) {
	cfg := Config{APIBaseURL: "http://localhost:8080"}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	return cfg, nil
}

// SaveConfig writes the config with owner-only permissions; it holds tokens.
func SaveConfig(path string, cfg Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// ResolveSnapshotPath resolves the review snapshot location next to the
// config file unless overridden.
func (c Config) ResolveSnapshotPath(configPath string) string {
	if c.SnapshotPath != "" {
		return c.SnapshotPath
	}
	return filepath.Join(filepath.Dir(configPath), "review.snapshot")
}
