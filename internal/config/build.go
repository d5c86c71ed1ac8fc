package config

import "time"

// BuildConfig configures library builds.
type BuildConfig struct {
	// Parallelism is the default worker pool size; the -j flag overrides it.
	Parallelism int `yaml:"parallelism" json:"parallelism,omitempty"`

	// KeepScratch leaves partial-conversion scratch artifacts on disk after a
	// merge, for debugging toolchain output.
	KeepScratch bool `yaml:"keep_scratch" json:"keep_scratch,omitempty"`

	// WatchDebounce delays a --watch rebuild after the spec file changes.
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce,omitempty"`
}

// DefaultBuildConfig returns sensible defaults.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		Parallelism:   1,
		WatchDebounce: "500ms",
	}
}

// GetWatchDebounce returns the --watch debounce as a duration.
func (b BuildConfig) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(b.WatchDebounce)
	if err != nil || d < 0 {
		return 500 * time.Millisecond
	}
	return d
}
