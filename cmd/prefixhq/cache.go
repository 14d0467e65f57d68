package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/cache"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/metadata"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the PrefixHQ caches",
	Long: `Commands for managing the parsed-manifest cache and downloaded covers.

The manifest cache speeds up repeat scans of unchanged libraries. Covers are
stored in the XDG cache directory (typically ~/.cache/prefixhq/covers).
Custom names and status marks live in the store and are never cleared here.`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear cached manifests and covers",
	Long: `Removes parsed manifests and downloaded covers. Cached names are
invalidated so the next scan fetches them again. Override covers and the
user's names and marks are kept.`,
	Args: cobra.NoArgs,
	RunE: runCacheClear,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show cache locations",
	Args:  cobra.NoArgs,
	RunE:  runCachePath,
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCachePath(cmd *cobra.Command, _ []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "manifests: %s\n", cfg.Cache.ManifestPath)
	fmt.Fprintf(w, "covers:    %s\n", cfg.Cache.CoversDir)
	fmt.Fprintf(w, "overrides: %s\n", cfg.Cache.OverrideCoversDir)
	fmt.Fprintf(w, "store:     %s\n", cfg.Store.Path)
	return nil
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	covers := metadata.NewCoverCache(cfg.Cache.CoversDir, cfg.Cache.OverrideCoversDir)
	n, size, err := covers.Usage()
	if err != nil {
		return fmt.Errorf("failed to read cover cache: %w", err)
	}
	fmt.Fprintf(w, "Covers:        %d (%s)\n", n, humanize.Bytes(uint64(size)))

	if cfg.Cache.Manifests {
		c, err := cache.Open(cfg.Cache.ManifestPath)
		if err != nil {
			return fmt.Errorf("failed to open manifest cache: %w", err)
		}
		stats, err := c.Stats()
		_ = c.Close()
		if err != nil {
			return fmt.Errorf("failed to read manifest cache: %w", err)
		}
		fmt.Fprintf(w, "Manifests:     %d\n", stats.Entries)
	} else {
		fmt.Fprintln(w, "Manifests:     disabled")
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	fmt.Fprintf(w, "Store records: %d\n", st.Len())
	if st.Corrupt() {
		printInfo("warning: %s", st.Diagnostic().String())
	}
	return nil
}

func runCacheClear(_ *cobra.Command, _ []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	covers := metadata.NewCoverCache(cfg.Cache.CoversDir, cfg.Cache.OverrideCoversDir)
	n, err := covers.Clear()
	if err != nil {
		return fmt.Errorf("failed to clear covers: %w", err)
	}

	if cfg.Cache.Manifests {
		c, err := cache.Open(cfg.Cache.ManifestPath)
		if err != nil {
			return fmt.Errorf("failed to open manifest cache: %w", err)
		}
		err = c.ClearAll()
		_ = c.Close()
		if err != nil {
			return fmt.Errorf("failed to clear manifest cache: %w", err)
		}
	}

	// Cached cover paths now point at deleted files.
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if err := st.InvalidateAll(); err != nil {
		return fmt.Errorf("failed to invalidate metadata: %w", err)
	}

	printInfo("Cache cleared (%d covers removed).", n)
	return nil
}
