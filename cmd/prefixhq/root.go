package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "prefixhq",
		Short: "Find and reconcile Steam Proton prefixes",
		Long: `PrefixHQ inventories the Proton/Wine prefixes under every Steam library,
tells installed games apart from orphaned leftovers, and names each one.

Running prefixhq with no command scans and prints the reconciled list.
Nothing is ever deleted: delete-request only records what should go.

Examples:
  prefixhq                        # Scan and list every prefix
  prefixhq -S orphaned --sizes    # Orphaned prefixes with disk usage
  prefixhq -o json                # Machine-readable output
  prefixhq rename 999999 "Old Beta"
  prefixhq mark 440 orphaned      # Pin a status that survives rescans
  prefixhq watch                  # Rescan when libraries change`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initializeLogging,
		PersistentPostRun: func(*cobra.Command, []string) { shutdownLogging() },
		RunE:              runScan,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/PrefixHQ/config.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "output format (pretty, plain, json, jsonl, yaml, csv, markdown, paths, null, template)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output on stderr")
	rootCmd.PersistentFlags().Bool("offline", false, "never contact metadata sources")
	rootCmd.PersistentFlags().Bool("no-cache", false, "bypass the parsed-manifest cache")

	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("offline", rootCmd.PersistentFlags().Lookup("offline"))
	_ = viper.BindPFlag("no_cache", rootCmd.PersistentFlags().Lookup("no-cache"))

	addScanFlags(rootCmd)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		return err
	}
	return nil
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printInfo prints a message to stderr unless quiet mode is enabled, so
// progress never mixes with formatted output on stdout.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
