package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/config"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/journal"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View scan and deletion request history",
	Long: `View the journal of scan passes and deletion requests.

Deletion requests list the prefix directories a user asked to remove;
prefixhq never deletes them itself.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a journal entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove journal entries older than the retention period",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var (
	historyLimit int
	historyAppID string
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")
	historyCmd.Flags().StringVar(&historyAppID, "appid", "", "only deletion requests for this AppID")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// getJournal opens the configured journal.
func getJournal() (*journal.Journal, *config.Config, error) {
	cfg, err := loadedConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Journal.Enabled {
		return nil, nil, errors.New("the journal is disabled (journal.enabled: false)")
	}
	j, err := journal.New(cfg.Journal.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return j, cfg, nil
}

// runHistory lists recent journal entries.
func runHistory(cmd *cobra.Command, _ []string) error {
	j, _, err := getJournal()
	if err != nil {
		return err
	}

	var entries []journal.Entry
	if historyAppID != "" {
		id, err := types.ParseAppID(historyAppID)
		if err != nil {
			return err
		}
		entries, err = j.Requests(id)
		if err != nil {
			return fmt.Errorf("failed to list requests: %w", err)
		}
		if historyLimit > 0 && len(entries) > historyLimit {
			entries = entries[:historyLimit]
		}
	} else {
		entries, err = j.List(historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}
	}

	if len(entries) == 0 {
		printInfo("No history entries found.")
		printInfo("Run 'prefixhq' to scan your libraries.")
		return nil
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-44s  %-14s  %-19s  %s\n", "ID", "TYPE", "TIME", "SUMMARY")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, e := range entries {
		fmt.Fprintf(w, "%-44s  %-14s  %-19s  %s\n",
			truncateString(e.ID, 44),
			e.Operation,
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			summarizeEntry(e),
		)
	}
	fmt.Fprintln(w, strings.Repeat("-", 100))
	printInfo("Use 'prefixhq history show <id>' for details on a specific entry.")
	return nil
}

// summarizeEntry describes an entry in one line.
func summarizeEntry(e journal.Entry) string {
	switch {
	case e.Scan != nil:
		s := e.Scan
		return fmt.Sprintf("%d prefixes: %d installed, %d orphaned, %d marked", s.Entries, s.Installed, s.Orphaned, s.Marked)
	case e.Request != nil:
		r := e.Request
		return fmt.Sprintf("%s (%s), %d path(s), %s", r.Name, r.AppID, len(r.Paths), types.FormatSize(r.Bytes))
	default:
		return ""
	}
}

// runHistoryShow displays a single journal entry.
func runHistoryShow(cmd *cobra.Command, args []string) error {
	j, _, err := getJournal()
	if err != nil {
		return err
	}

	entry, err := j.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}
	printEntry(cmd.OutOrStdout(), entry)
	return nil
}

func printEntry(w io.Writer, entry *journal.Entry) {
	fmt.Fprintln(w, "Journal Entry")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "ID:         %s\n", entry.ID)
	fmt.Fprintf(w, "Timestamp:  %s\n", entry.Timestamp.Local().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Operation:  %s\n", entry.Operation)

	if s := entry.Scan; s != nil {
		fmt.Fprintf(w, "Libraries:  %d\n", s.Libraries)
		fmt.Fprintf(w, "Prefixes:   %d\n", s.Entries)
		fmt.Fprintf(w, "Installed:  %d\n", s.Installed)
		fmt.Fprintf(w, "Orphaned:   %d\n", s.Orphaned)
		fmt.Fprintf(w, "Marked:     %d\n", s.Marked)
		fmt.Fprintf(w, "Duplicated: %d\n", s.Duplicates)
		fmt.Fprintf(w, "Warnings:   %d\n", s.Diagnostics)
		fmt.Fprintf(w, "Elapsed:    %s\n", s.Elapsed.Round(time.Millisecond))
	}

	if r := entry.Request; r != nil {
		fmt.Fprintf(w, "AppID:      %s\n", r.AppID)
		fmt.Fprintf(w, "Name:       %s\n", r.Name)
		fmt.Fprintf(w, "Status:     %s\n", r.Status)
		fmt.Fprintf(w, "Size:       %s\n", types.FormatSize(r.Bytes))
		if r.Installed {
			fmt.Fprintln(w, "Note:       game was still installed")
		}
		if r.NonSteam {
			fmt.Fprintln(w, "Note:       non-Steam shortcut")
		}
		fmt.Fprintln(w, "\nPaths:")
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for _, p := range r.Paths {
			fmt.Fprintln(w, p)
		}
	}
}

// runHistoryClean removes old journal entries.
func runHistoryClean(_ *cobra.Command, _ []string) error {
	j, cfg, err := getJournal()
	if err != nil {
		return err
	}

	retentionDays := cfg.Journal.RetentionDays
	if retentionDays <= 0 {
		retentionDays = config.DefaultRetentionDays
	}

	printInfo("Cleaning journal entries older than %d days...", retentionDays)
	n, err := j.Prune(retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}
	printInfo("Removed %d entries.", n)
	return nil
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
