// Package logging provides config-driven categorized logging for ndforge.
// Every category is a named child of one zap logger; categories disabled in
// settings.yml get a no-op logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ndforge/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, settings
	CategoryIndex     Category = "index"     // Tape index lookups
	CategoryResolve   Category = "resolve"   // Layered resolution, coupling
	CategoryBuild     Category = "build"     // Orchestrator and workers
	CategoryMerge     Category = "merge"     // Incremental temperature merges
	CategoryRemediate Category = "remediate" // Negative cross-section remediation
	CategoryManifest  Category = "manifest"  // cross_sections.xml reads and writes
)

// Logger wraps a sugared zap logger bound to a category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	base      = zap.NewNop()
	cfg       config.LoggingConfig
	cfgMu     sync.RWMutex
)

// Initialize builds the root logger from settings.
// Until it is called every category logs nowhere.
func Initialize(c config.LoggingConfig) error {
	level, err := parseLevel(c.Level)
	if err != nil {
		return err
	}

	var zc zap.Config
	if strings.EqualFold(c.Format, "json") {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zc.DisableStacktrace = true
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableCaller = true
	if c.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		zc.OutputPaths = []string{c.File}
	} else {
		zc.OutputPaths = []string{"stderr"}
	}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	Replace(logger, c)

	boot := Get(CategoryBoot)
	boot.Debug("logging initialized: level=%s format=%s", level, zc.Encoding)
	if len(c.Categories) > 0 {
		for cat, enabled := range c.Categories {
			boot.Debug("category '%s': %v", cat, enabled)
		}
	}
	return nil
}

// Replace swaps the root logger. Tests use it with zaptest/observer cores.
func Replace(logger *zap.Logger, c config.LoggingConfig) {
	cfgMu.Lock()
	base = logger
	cfg = c
	cfgMu.Unlock()

	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
}

// Root returns the root zap logger.
func Root() *zap.Logger {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return base
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg.IsCategoryEnabled(string(category))
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	root := Root()
	if !IsCategoryEnabled(category) {
		root = zap.NewNop()
	}
	l := &Logger{
		category: category,
		sugar:    root.Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a child logger carrying key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// CloseAll flushes buffered entries (call at shutdown)
func CloseAll() {
	_ = Root().Sync()
}

// =============================================================================
// ITEM LOGS - one file per build item, next to the library it produces
// =============================================================================

// OpenItemLog creates a logger writing plain lines to path. The returned
// close function flushes and closes the file.
func OpenItemLog(path string) (*zap.Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open item log %s: %w", path, err)
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(f), zapcore.DebugLevel)
	logger := zap.New(core)

	closeFn := func() error {
		_ = logger.Sync()
		return f.Close()
	}
	return logger, closeFn, nil
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// BootWarn logs warning to the boot category
func BootWarn(format string, args ...interface{}) {
	Get(CategoryBoot).Warn(format, args...)
}

// IndexDebug logs debug to the index category
func IndexDebug(format string, args ...interface{}) {
	Get(CategoryIndex).Debug(format, args...)
}

// Resolve logs to the resolve category
func Resolve(format string, args ...interface{}) {
	Get(CategoryResolve).Info(format, args...)
}

// ResolveDebug logs debug to the resolve category
func ResolveDebug(format string, args ...interface{}) {
	Get(CategoryResolve).Debug(format, args...)
}

// ResolveWarn logs warning to the resolve category
func ResolveWarn(format string, args ...interface{}) {
	Get(CategoryResolve).Warn(format, args...)
}

// Build logs to the build category
func Build(format string, args ...interface{}) {
	Get(CategoryBuild).Info(format, args...)
}

// BuildDebug logs debug to the build category
func BuildDebug(format string, args ...interface{}) {
	Get(CategoryBuild).Debug(format, args...)
}

// BuildWarn logs warning to the build category
func BuildWarn(format string, args ...interface{}) {
	Get(CategoryBuild).Warn(format, args...)
}

// BuildError logs error to the build category
func BuildError(format string, args ...interface{}) {
	Get(CategoryBuild).Error(format, args...)
}

// Merge logs to the merge category
func Merge(format string, args ...interface{}) {
	Get(CategoryMerge).Info(format, args...)
}

// MergeDebug logs debug to the merge category
func MergeDebug(format string, args ...interface{}) {
	Get(CategoryMerge).Debug(format, args...)
}

// Remediate logs to the remediate category
func Remediate(format string, args ...interface{}) {
	Get(CategoryRemediate).Info(format, args...)
}

// RemediateDebug logs debug to the remediate category
func RemediateDebug(format string, args ...interface{}) {
	Get(CategoryRemediate).Debug(format, args...)
}

// RemediateWarn logs warning to the remediate category
func RemediateWarn(format string, args ...interface{}) {
	Get(CategoryRemediate).Warn(format, args...)
}

// ManifestDebug logs debug to the manifest category
func ManifestDebug(format string, args ...interface{}) {
	Get(CategoryManifest).Debug(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}
