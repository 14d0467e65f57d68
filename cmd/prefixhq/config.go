package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage PrefixHQ configuration settings.

Configuration is loaded from $XDG_CONFIG_HOME/PrefixHQ/config.yaml
(typically ~/.config/PrefixHQ/config.yaml) or the file given with --config.

Environment variables override config file settings using the PREFIXHQ_ prefix:
  PREFIXHQ_METADATA_ENABLED=false
  PREFIXHQ_SCAN_COMPUTE_SIZES=true
  PREFIXHQ_OUTPUT_FORMAT=json`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// runConfigShow prints the merged configuration as YAML.
func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	if cfg.File != "" {
		printInfo("Config file: %s", cfg.File)
	} else {
		printInfo("Config file: (using defaults, no file found)")
	}

	shown := *cfg
	if shown.Metadata.SteamGridDBAPIKey != "" {
		shown.Metadata.SteamGridDBAPIKey = "********"
	}

	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// runConfigInit creates a default config file.
func runConfigInit(_ *cobra.Command, _ []string) error {
	configPath := config.ConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		return nil
	}

	path, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	printInfo("Created default config file: %s", path)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, _ []string) error {
	path := config.ConfigPath()
	if cfgFile != "" {
		path = cfgFile
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		printInfo("File does not exist (defaults are used)")
	}
	return nil
}
