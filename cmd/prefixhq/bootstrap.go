package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/config"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/logging"
)

// appConfig is the configuration loaded by initializeLogging.
var appConfig *config.Config

// initializeLogging loads configuration and starts file logging. It runs as
// the root PersistentPreRunE, before every command.
func initializeLogging(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return err
	}
	appConfig = cfg

	for _, dir := range []string{config.ConfigDir(), config.DataDir(), config.CacheDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	logCfg := cfg.LoggingConfig()
	if getVerbose() {
		logCfg.ConsoleLevel = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		// Logging is best effort; a read-only state dir must not block scans.
		fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
	}

	logging.Get("cli").Debug("configuration loaded", "store", cfg.Store.Path, "covers", cfg.Cache.CoversDir)
	return nil
}

// shutdownLogging flushes and closes the log file.
func shutdownLogging() {
	_ = logging.Close()
}

// loadedConfig returns the configuration, loading it if a command runs
// without the root pre-run hook (as in tests).
func loadedConfig() (*config.Config, error) {
	if appConfig != nil {
		return appConfig, nil
	}
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, err
	}
	appConfig = cfg
	return cfg, nil
}
