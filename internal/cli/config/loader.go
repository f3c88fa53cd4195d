package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrNoProfile is returned for an unknown profile name.
var ErrNoProfile = errors.New("no such profile")

// ProfileError ties an error to a profile.
type ProfileError struct {
	Name string
	Err  error
}

func (e *ProfileError) Error() string {
	return fmt.Sprintf("profile %q: %v", e.Name, e.Err)
}

func (e *ProfileError) Unwrap() error {
	return e.Err
}

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".remotely", "cli.yaml")
}

// Load loads CLI configuration from file. A missing file yields Default().
func Load(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	return cfg, nil
}

// Save writes the configuration with mode 0600, creating its directory.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Profile returns the named profile, or the current one when name is empty.
// ok is false when neither exists.
func (c *CLIConfig) Profile(name string) (Profile, bool, error) {
	if name == "" {
		name = c.CurrentProfile
	}
	if name == "" {
		return Profile{}, false, nil
	}
	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, false, &ProfileError{Name: name, Err: ErrNoProfile}
	}
	return p, true, nil
}
