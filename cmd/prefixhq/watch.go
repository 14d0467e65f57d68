package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/logging"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rescan whenever a library changes",
	Long: `Scan once and print the result, then watch every library's manifests and
compatdata directory. Each burst of changes triggers a rescan and prints
the prefixes that appeared, disappeared or changed.

Press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	addScanFlags(watchCmd)
	watchCmd.Flags().Duration("debounce", watcher.DefaultDebounce, "quiet period before rescanning")
	rootCmd.AddCommand(watchCmd)
}

// runWatch is the watch command handler.
func runWatch(cmd *cobra.Command, _ []string) error {
	bindFlags(cmd)
	logger := logging.Get("cli")

	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	f, err := buildFilter()
	if err != nil {
		return fmt.Errorf("failed to build filter: %w", err)
	}
	formatter, err := buildFormatter(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := appOptionsFromFlags()
	sizes := wantSizes(cmd, cfg)
	opts.ComputeSizes = &sizes

	a, err := openApp(cfg, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	enrich := !viper.GetBool("no_enrich")
	result, _, err := scanAndEnrich(ctx, a.engine, enrich)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("scan failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if err := render(out, formatter, f, result, false); err != nil {
		return err
	}

	w, err := watcher.New(viper.GetDuration("debounce"))
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.WatchLibraries(result.Libraries); err != nil {
		logger.Warn("some libraries are not watched", "error", err)
	}
	printInfo("Watching %d directories. Press Ctrl+C to stop.", len(w.Paths()))

	prev := f.Apply(result.Entries)
	w.Run(ctx, func(change watcher.Change) {
		logger.Debug("rescanning", "changed", len(change.Paths))
		next, _, err := scanAndEnrich(ctx, a.engine, enrich)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				printError("rescan failed: %v", err)
			}
			return
		}
		// New libraries may appear in libraryfolders.vdf.
		if err := w.WatchLibraries(next.Libraries); err != nil {
			logger.Warn("some libraries are not watched", "error", err)
		}

		entries := f.Apply(next.Entries)
		printChanges(out, time.Now(), diffEntries(prev, entries))
		prev = entries
	})
	return nil
}

// changeKind classifies one difference between two scans.
type changeKind string

const (
	changeAdded   changeKind = "+"
	changeRemoved changeKind = "-"
	changeUpdated changeKind = "~"
)

// entryChange is one entry that differs between two scans.
type entryChange struct {
	Kind   changeKind
	Entry  types.ReconciledEntry
	Before types.ReconciledEntry
}

// diffEntries compares two entry sets by AppID. Entries whose name, status
// or prefix path changed are reported as updates.
func diffEntries(before, after []types.ReconciledEntry) []entryChange {
	old := make(map[types.AppID]types.ReconciledEntry, len(before))
	for _, e := range before {
		old[e.AppID] = e
	}

	var changes []entryChange
	seen := make(map[types.AppID]bool, len(after))
	for _, e := range after {
		seen[e.AppID] = true
		prev, ok := old[e.AppID]
		switch {
		case !ok:
			changes = append(changes, entryChange{Kind: changeAdded, Entry: e})
		case prev.Name != e.Name || prev.Status != e.Status || prev.Prefix.Path != e.Prefix.Path:
			changes = append(changes, entryChange{Kind: changeUpdated, Entry: e, Before: prev})
		}
	}
	for _, e := range before {
		if !seen[e.AppID] {
			changes = append(changes, entryChange{Kind: changeRemoved, Entry: e})
		}
	}
	return changes
}

func printChanges(w io.Writer, at time.Time, changes []entryChange) {
	if len(changes) == 0 {
		return
	}
	stamp := at.Format("15:04:05")
	for _, c := range changes {
		e := c.Entry
		switch c.Kind {
		case changeUpdated:
			fmt.Fprintf(w, "%s %s %-10s %s (%s -> %s)\n", stamp, c.Kind, e.AppID, e.Name, c.Before.Status, e.Status)
		default:
			fmt.Fprintf(w, "%s %s %-10s %s (%s)\n", stamp, c.Kind, e.AppID, e.Name, e.Status)
		}
	}
}
