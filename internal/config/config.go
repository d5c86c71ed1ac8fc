package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized by applyEnvOverrides.
const (
	EnvConfigDir = "NDFORGE_CONFIG"
	EnvTapeRoot  = "NDFORGE_ENDF6"
	EnvLibraries = "NDFORGE_LIBRARIES"
	EnvToolchain = "NDFORGE_TOOLCHAIN"
	EnvJobs      = "NDFORGE_JOBS"
	EnvLogLevel  = "NDFORGE_LOG_LEVEL"
)

// SettingsFile is the name of the settings file inside the config directory.
const SettingsFile = "settings.yml"

// Config holds all ndforge configuration.
// It is built once at program start and passed explicitly to every component.
type Config struct {
	// TapeRoot is the directory holding installed evaluation tapes,
	// laid out as <TapeRoot>/<library>/<sublibrary>/<key>.endf6.
	TapeRoot string `yaml:"tape_root"`

	// LibraryRoot is where built libraries live, one directory per library.
	LibraryRoot string `yaml:"library_root"`

	// External processing toolchain
	Toolchain ToolchainConfig `yaml:"toolchain"`

	// Build orchestration defaults
	Build BuildConfig `yaml:"build"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Toolchain: DefaultToolchainConfig(),
		Build:     DefaultBuildConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultDir returns the directory settings are read from: $NDFORGE_CONFIG
// when set, ~/.config/ndforge otherwise.
func DefaultDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "ndforge")
	}
	return filepath.Join(home, ".config", "ndforge")
}

// DefaultPath returns the settings file path inside DefaultDir.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), SettingsFile)
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults; environment overrides always apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks the settings every build needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.TapeRoot) == "" {
		return fmt.Errorf("config: tape_root is required (or set %s)", EnvTapeRoot)
	}
	if strings.TrimSpace(c.LibraryRoot) == "" {
		return fmt.Errorf("config: library_root is required (or set %s)", EnvLibraries)
	}
	if c.Build.Parallelism < 1 {
		return fmt.Errorf("config: build.parallelism must be >= 1, got %d", c.Build.Parallelism)
	}
	if err := c.Toolchain.validate(); err != nil {
		return fmt.Errorf("config: toolchain: %w", err)
	}
	return nil
}

// LibraryDir returns the directory of a built library.
func (c *Config) LibraryDir(name string) string {
	return filepath.Join(c.LibraryRoot, name)
}

// ManifestPath returns the manifest path of a built library.
func (c *Config) ManifestPath(name string) string {
	return filepath.Join(c.LibraryDir(name), "cross_sections.xml")
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv(EnvTapeRoot); path != "" {
		c.TapeRoot = path
	}
	if path := os.Getenv(EnvLibraries); path != "" {
		c.LibraryRoot = path
	}
	if cmd := os.Getenv(EnvToolchain); cmd != "" {
		c.Toolchain.Command = cmd
	}
	if jobs := os.Getenv(EnvJobs); jobs != "" {
		if n, err := strconv.Atoi(jobs); err == nil && n > 0 {
			c.Build.Parallelism = n
		}
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}
}

func (c *Config) normalize() {
	c.TapeRoot = absPath(c.TapeRoot)
	c.LibraryRoot = absPath(c.LibraryRoot)
	if c.Build.Parallelism < 1 {
		c.Build.Parallelism = 1
	}
}

func absPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
