package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/cache"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/config"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/engine"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/journal"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/library"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/logging"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/metadata"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/store"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/tuner"
)

// app bundles the components a command needs.
type app struct {
	cfg      *config.Config
	store    *store.Store
	cache    *cache.Cache
	covers   *metadata.CoverCache
	resolver *metadata.Resolver
	journal  *journal.Journal
	engine   *engine.Engine
}

// appOptions adjusts how openApp wires components.
type appOptions struct {
	// Offline disables metadata sources.
	Offline bool

	// NoCache skips the parsed-manifest cache.
	NoCache bool

	// ComputeSizes overrides scan.compute_sizes when set.
	ComputeSizes *bool
}

// appOptionsFromFlags reads the persistent flags.
func appOptionsFromFlags() appOptions {
	return appOptions{
		Offline: viper.GetBool("offline"),
		NoCache: viper.GetBool("no_cache"),
	}
}

// openApp wires the engine from configuration. Optional components that
// fail to open (manifest cache, journal) are logged and left out.
func openApp(cfg *config.Config, opts appOptions) (*app, error) {
	logger := logging.Get("cli")

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a := &app{
		cfg:    cfg,
		store:  st,
		covers: metadata.NewCoverCache(cfg.Cache.CoversDir, cfg.Cache.OverrideCoversDir),
	}

	if cfg.Cache.Manifests && !opts.NoCache {
		c, err := cache.Open(cfg.Cache.ManifestPath)
		if err != nil {
			logger.Warn("manifest cache unavailable", "path", cfg.Cache.ManifestPath, "error", err)
		} else {
			a.cache = c
		}
	}

	if cfg.Journal.Enabled {
		j, err := journal.New(cfg.Journal.Path)
		if err != nil {
			logger.Warn("journal unavailable", "path", cfg.Journal.Path, "error", err)
		} else {
			a.journal = j
		}
	}

	client := metadata.NewHTTPClient(cfg.Metadata.Timeout)
	var sources []metadata.Source
	if cfg.Metadata.SteamGridDBAPIKey != "" {
		sources = append(sources, metadata.NewSteamGridDB(client, cfg.Metadata.SteamGridDBAPIKey))
	}
	sources = append(sources, metadata.NewSteamStore(client, cfg.Metadata.Language, cfg.Metadata.Country))

	a.resolver = metadata.NewResolver(metadata.ResolverOptions{
		Store:   st,
		Covers:  a.covers,
		Sources: sources,
		Client:  client,
		TTL:     cfg.Metadata.TTL,
		Offline: opts.Offline || !cfg.Metadata.Enabled,
	})

	tuned := tuner.Tune(cfg.Scan.SizeWorkers, cfg.Metadata.Concurrency)
	logger.Debug("workers tuned", "size_workers", tuned.SizeWorkers, "metadata_concurrency", tuned.MetadataConcurrency)

	computeSizes := cfg.Scan.ComputeSizes
	if opts.ComputeSizes != nil {
		computeSizes = *opts.ComputeSizes
	}

	engOpts := engine.Options{
		Discovery: library.Options{
			ExtraRoots:     cfg.Steam.ExtraRoots,
			ExtraLibraries: cfg.Steam.ExtraLibraries,
		},
		Store:        st,
		Resolver:     a.resolver,
		Covers:       a.covers,
		Concurrency:  tuned.MetadataConcurrency,
		Journal:      a.journal,
		Ignore:       cfg.IgnoreSet(),
		Parallel:     cfg.Scan.Parallel,
		ComputeSizes: computeSizes,
		SizeWorkers:  tuned.SizeWorkers,
	}
	// A nil *cache.Cache in the interface would not read as "no cache".
	if a.cache != nil {
		engOpts.Cache = a.cache
	}

	eng, err := engine.New(engOpts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = eng
	return a, nil
}

// Close releases the engine and the manifest cache.
func (a *app) Close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logging.Get("cli").Warn("failed to close manifest cache", "error", err)
		}
	}
}
