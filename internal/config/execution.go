package config

import (
	"fmt"
	"strings"
	"time"
)

// ToolchainConfig configures the external evaluation-processing toolchain.
type ToolchainConfig struct {
	// Command is the processing driver binary.
	Command string `yaml:"command" json:"command,omitempty"`

	// Args are prepended to every invocation (e.g. a script path for an interpreter).
	Args []string `yaml:"args" json:"args,omitempty"`

	// Timeout bounds a single invocation. Empty means no timeout.
	Timeout string `yaml:"timeout" json:"timeout,omitempty"`

	// AllowedEnvVars are the environment variables passed through to the driver.
	AllowedEnvVars []string `yaml:"allowed_env_vars" json:"allowed_env_vars,omitempty"`
}

// DefaultToolchainConfig returns sensible defaults.
func DefaultToolchainConfig() ToolchainConfig {
	return ToolchainConfig{
		Command:        "ndprocess",
		AllowedEnvVars: []string{"PATH", "HOME", "NJOY", "OPENMC_CROSS_SECTIONS"},
	}
}

// GetTimeout returns the invocation timeout, zero when unset or malformed.
func (t ToolchainConfig) GetTimeout() time.Duration {
	if strings.TrimSpace(t.Timeout) == "" {
		return 0
	}
	d, err := time.ParseDuration(t.Timeout)
	if err != nil {
		return 0
	}
	return d
}

func (t ToolchainConfig) validate() error {
	if strings.TrimSpace(t.Command) == "" {
		return fmt.Errorf("command is required")
	}
	if strings.TrimSpace(t.Timeout) != "" {
		if _, err := time.ParseDuration(t.Timeout); err != nil {
			return fmt.Errorf("timeout %q: %w", t.Timeout, err)
		}
	}
	return nil
}
