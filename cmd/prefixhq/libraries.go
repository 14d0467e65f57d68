package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/config"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/library"
)

var librariesCmd = &cobra.Command{
	Use:   "libraries",
	Short: "List discovered Steam libraries",
	Long: `List every Steam library found under the native, Flatpak and Snap
install roots, plus any configured extra roots and libraries.`,
	Args: cobra.NoArgs,
	RunE: runLibraries,
}

func init() {
	rootCmd.AddCommand(librariesCmd)
}

// runLibraries prints the discovered libraries.
func runLibraries(cmd *cobra.Command, _ []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	res, err := library.Discover(discoveryOptions(cfg))
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	return printLibraries(cmd.OutOrStdout(), res, viper.GetString("output"))
}

// discoveryOptions maps the steam configuration onto discovery options.
func discoveryOptions(cfg *config.Config) library.Options {
	return library.Options{
		ExtraRoots:     cfg.Steam.ExtraRoots,
		ExtraLibraries: cfg.Steam.ExtraLibraries,
	}
}

func printLibraries(w io.Writer, res *library.Result, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Libraries)
	}

	if !res.SteamFound() && len(res.Libraries) == 0 {
		printInfo("Steam not found.")
		printInfo("Add an install root with steam.extra_roots in %s.", config.ConfigPath())
		return nil
	}

	fmt.Fprintf(w, "%-3s  %-8s  %s\n", "#", "ORIGIN", "PATH")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, lib := range res.Libraries {
		fmt.Fprintf(w, "%-3d  %-8s  %s\n", lib.Order, lib.Origin, lib.Path)
	}
	for _, d := range res.Diagnostics {
		printInfo("warning: %s", d.String())
	}
	return nil
}
