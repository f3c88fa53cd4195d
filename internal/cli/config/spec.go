package config

import "github.com/yndnr/remotely/internal/core/domain"

// CLIConfig is the configuration for remotely-cli.
type CLIConfig struct {
	// DefaultOutput is table, json or yaml.
	DefaultOutput string `yaml:"default_output"`

	// Profiles are saved connection details by name.
	Profiles map[string]Profile `yaml:"profiles"`

	// CurrentProfile is used when no session or profile is given.
	CurrentProfile string `yaml:"current_profile"`
}

// Profile stores saved connection details.
type Profile struct {
	// Session is a "REMOTELY DATA host port key" string.
	Session string `yaml:"session"`

	// Host replaces the session host, typically when the server printed "--".
	Host string `yaml:"host,omitempty"`

	// Socket is the server's local management socket.
	Socket string `yaml:"socket,omitempty"`

	// Metrics is the server's metrics HTTP address.
	Metrics string `yaml:"metrics,omitempty"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		DefaultOutput: "table",
		Profiles:      make(map[string]Profile),
	}
}

// Validate checks that every profile holds a parsable session.
func (c *CLIConfig) Validate() error {
	for name, p := range c.Profiles {
		if _, err := domain.ParseSession(p.Session); err != nil {
			return &ProfileError{Name: name, Err: err}
		}
	}
	if c.CurrentProfile != "" {
		if _, ok := c.Profiles[c.CurrentProfile]; !ok {
			return &ProfileError{Name: c.CurrentProfile, Err: ErrNoProfile}
		}
	}
	return nil
}
