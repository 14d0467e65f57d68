package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/engine"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/filter"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/logging"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/output"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan libraries and list prefixes",
	Long: `Scan every Steam library, reconcile prefixes against installed games,
fetch missing names and covers, and print the result.

This is the default command.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	addScanFlags(scanCmd)
	rootCmd.AddCommand(scanCmd)
}

// runScan is the scan command handler.
func runScan(cmd *cobra.Command, _ []string) error {
	bindFlags(cmd)

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

	result, interrupted, err := scanAndEnrich(ctx, a.engine, !viper.GetBool("no_enrich"))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			printInfo("Scan cancelled")
			return nil
		}
		return fmt.Errorf("scan failed: %w", err)
	}

	if a.journal != nil && cfg.Journal.RetentionDays > 0 {
		if n, err := a.journal.Prune(cfg.Journal.RetentionDays); err != nil {
			logging.Get("cli").Warn("failed to prune journal", "error", err)
		} else if n > 0 {
			logging.Get("cli").Debug("pruned journal", "removed", n)
		}
	}

	return render(cmd.OutOrStdout(), formatter, f, result, interrupted)
}

// scanAndEnrich runs one scan and waits for metadata enrichment. When ctx
// is cancelled during enrichment the entries gathered so far are returned
// with interrupted set.
func scanAndEnrich(ctx context.Context, eng *engine.Engine, enrich bool) (*types.ScanResult, bool, error) {
	result, err := eng.Scan(ctx)
	if err != nil {
		return nil, false, err
	}
	if !enrich {
		return result, false, nil
	}

	var fetched, failed int
	for u := range eng.Enrich(ctx, result) {
		fetched++
		if u.Partial {
			failed++
		}
	}
	if failed > 0 {
		printInfo("Metadata unavailable for %d of %d prefixes; will retry next scan.", failed, fetched)
	}

	if r := eng.Result(); r != nil {
		result = r
	}
	return result, ctx.Err() != nil, nil
}

// render filters result and writes it with formatter.
func render(w io.Writer, formatter output.Formatter, f *filter.Filter, result *types.ScanResult, interrupted bool) error {
	res := output.NewResult(result, f.Apply(result.Entries))
	res.Interrupted = interrupted

	var buf bytes.Buffer
	if err := formatter.Format(&buf, res); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err := io.Copy(w, &buf)
	return err
}
