package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CONFIG TESTS
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvTapeRoot, EnvLibraries, EnvToolchain, EnvJobs, EnvLogLevel} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Build.Parallelism != 1 {
		t.Errorf("expected Parallelism=1, got %d", cfg.Build.Parallelism)
	}
	if cfg.Toolchain.Command != "ndprocess" {
		t.Errorf("expected Command=ndprocess, got %s", cfg.Toolchain.Command)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected Level=info, got %s", cfg.Logging.Level)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, SettingsFile)

	cfg := DefaultConfig()
	cfg.TapeRoot = filepath.Join(tmpDir, "endf6")
	cfg.LibraryRoot = filepath.Join(tmpDir, "libs")
	cfg.Build.Parallelism = 6
	cfg.Toolchain.Timeout = "2h"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.TapeRoot, loaded.TapeRoot)
	assert.Equal(t, cfg.LibraryRoot, loaded.LibraryRoot)
	assert.Equal(t, 6, loaded.Build.Parallelism)
	assert.Equal(t, 2*time.Hour, loaded.Toolchain.GetTimeout())
	assert.NoError(t, loaded.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Toolchain, cfg.Toolchain)
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), SettingsFile)
	require.NoError(t, os.WriteFile(path, []byte("build: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	tmp := t.TempDir()
	t.Setenv(EnvTapeRoot, filepath.Join(tmp, "tapes"))
	t.Setenv(EnvLibraries, filepath.Join(tmp, "libs"))
	t.Setenv(EnvToolchain, "/opt/bin/njoy-driver")
	t.Setenv(EnvJobs, "8")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load(filepath.Join(tmp, "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(tmp, "tapes"), cfg.TapeRoot)
	assert.Equal(t, filepath.Join(tmp, "libs"), cfg.LibraryRoot)
	assert.Equal(t, "/opt/bin/njoy-driver", cfg.Toolchain.Command)
	assert.Equal(t, 8, cfg.Build.Parallelism)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverrides_BadJobsIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvJobs, "many")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	assert.Equal(t, 1, cfg.Build.Parallelism)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.TapeRoot = "/data/endf6"
		cfg.LibraryRoot = "/data/libs"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"missing tape root", func(c *Config) { c.TapeRoot = "" }, false},
		{"missing library root", func(c *Config) { c.LibraryRoot = " " }, false},
		{"zero parallelism", func(c *Config) { c.Build.Parallelism = 0 }, false},
		{"missing command", func(c *Config) { c.Toolchain.Command = "" }, false},
		{"bad timeout", func(c *Config) { c.Toolchain.Timeout = "soon" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLibraryPaths(t *testing.T) {
	cfg := &Config{LibraryRoot: "/data/libs"}
	assert.Equal(t, filepath.Join("/data/libs", "endfb8"), cfg.LibraryDir("endfb8"))
	assert.Equal(t, filepath.Join("/data/libs", "endfb8", "cross_sections.xml"), cfg.ManifestPath("endfb8"))
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	c := LoggingConfig{}
	assert.True(t, c.IsCategoryEnabled("build"))

	c.Categories = map[string]bool{"merge": false}
	assert.False(t, c.IsCategoryEnabled("merge"))
	assert.True(t, c.IsCategoryEnabled("build"))
}

func TestBuildConfig_WatchDebounce(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, BuildConfig{WatchDebounce: "bogus"}.GetWatchDebounce())
	assert.Equal(t, 2*time.Second, BuildConfig{WatchDebounce: "2s"}.GetWatchDebounce())
}
