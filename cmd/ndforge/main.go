package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ndforge/cmd/ndforge/ui"
	"ndforge/internal/config"
	"ndforge/internal/logging"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Loaded by PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ndforge",
	Short: "ndforge - build derived nuclear data libraries",
	Long: `ndforge assembles processed nuclear data libraries from installed
evaluation tapes.

A library specification names a base library per sublibrary kind, materials to
omit, materials to add from other libraries and prior libraries to reuse.
ndforge resolves it, runs the processing toolchain on a bounded worker pool
and writes the artifacts and their cross_sections.xml manifest.

Settings are read from ~/.config/ndforge/settings.yml ($NDFORGE_CONFIG).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		if err := logging.Initialize(loaded.Logging); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			logging.BootWarn("no settings at %s, using defaults", configPath)
		} else {
			logging.BootDebug("settings loaded from %s", configPath)
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Settings file")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(remediateCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(infoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.DefaultStyles().Error.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logging.Boot("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
