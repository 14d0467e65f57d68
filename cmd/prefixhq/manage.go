package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

var renameCmd = &cobra.Command{
	Use:   "rename <appid> [name]",
	Short: "Set a custom display name",
	Long: `Set the display name shown for a prefix. A custom name wins over the
manifest and fetched names and survives rescans.

Examples:
  prefixhq rename 999999 "Old Beta"
  prefixhq rename 999999 --clear`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRename,
}

var markCmd = &cobra.Command{
	Use:   "mark <appid> installed|orphaned",
	Short: "Pin the status of a prefix",
	Long: `Pin the status of a prefix. The mark survives rescans and wins over the
status derived from the install manifests until removed with unmark.`,
	Args: cobra.ExactArgs(2),
	RunE: runMark,
}

var unmarkCmd = &cobra.Command{
	Use:   "unmark <appid>",
	Short: "Return a prefix to its derived status",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnmark,
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate [appid...]",
	Short: "Refetch names and covers on the next scan",
	Long: `Mark cached metadata as stale so the next scan fetches it again.
Custom names and status marks are kept.`,
	RunE: runInvalidate,
}

var forgetCmd = &cobra.Command{
	Use:   "forget <appid>",
	Short: "Drop every stored setting for an AppID",
	Long: `Remove the custom name, status mark, cached metadata and downloaded
cover of an AppID. The prefix itself is untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runForget,
}

var deleteRequestCmd = &cobra.Command{
	Use:   "delete-request <appid>",
	Short: "Record a request to delete a prefix",
	Long: `Scan, then journal a request to delete the prefix of an AppID and any
duplicates in other libraries. Nothing is deleted; the request lists the
directories for a separate, confirmed cleanup step.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeleteRequest,
}

var (
	renameClear   bool
	invalidateAll bool
)

func init() {
	renameCmd.Flags().BoolVar(&renameClear, "clear", false, "remove the custom name")
	invalidateCmd.Flags().BoolVar(&invalidateAll, "all", false, "invalidate every AppID")

	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(markCmd)
	rootCmd.AddCommand(unmarkCmd)
	rootCmd.AddCommand(invalidateCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(deleteRequestCmd)
}

// withApp opens the application offline, without sizes, and runs fn.
func withApp(fn func(*app) error) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	noSizes := false
	opts := appOptionsFromFlags()
	opts.ComputeSizes = &noSizes

	a, err := openApp(cfg, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func runRename(_ *cobra.Command, args []string) error {
	id, err := types.ParseAppID(args[0])
	if err != nil {
		return err
	}

	var name string
	switch {
	case renameClear && len(args) == 2:
		return errors.New("--clear takes no name")
	case renameClear:
	case len(args) == 2:
		name = strings.TrimSpace(args[1])
		if name == "" {
			return errors.New("name is empty; use --clear to remove a custom name")
		}
	default:
		return errors.New("a name or --clear is required")
	}

	return withApp(func(a *app) error {
		if err := a.engine.SetCustomName(id, name); err != nil {
			return err
		}
		if name == "" {
			printInfo("Cleared custom name for %s", id)
		} else {
			printInfo("Renamed %s to %q", id, name)
		}
		return nil
	})
}

func runMark(_ *cobra.Command, args []string) error {
	id, err := types.ParseAppID(args[0])
	if err != nil {
		return err
	}
	status, err := types.ParseOverride(strings.ToLower(args[1]))
	if err != nil {
		return err
	}

	return withApp(func(a *app) error {
		if err := a.engine.SetStatusOverride(id, status); err != nil {
			return err
		}
		printInfo("Marked %s as %s", id, status)
		return nil
	})
}

func runUnmark(_ *cobra.Command, args []string) error {
	id, err := types.ParseAppID(args[0])
	if err != nil {
		return err
	}

	return withApp(func(a *app) error {
		if err := a.engine.ClearStatusOverride(id); err != nil {
			return err
		}
		printInfo("Removed status mark for %s", id)
		return nil
	})
}

func runInvalidate(_ *cobra.Command, args []string) error {
	if invalidateAll == (len(args) > 0) {
		return errors.New("give one or more AppIDs or --all")
	}
	ids, err := parseAppIDs(args)
	if err != nil {
		return err
	}

	return withApp(func(a *app) error {
		if invalidateAll {
			if err := a.engine.InvalidateAll(); err != nil {
				return err
			}
			printInfo("Cached metadata invalidated for every AppID")
			return nil
		}
		for _, id := range ids {
			if err := a.engine.InvalidateCache(id); err != nil {
				return err
			}
		}
		printInfo("Cached metadata invalidated for %d AppID(s)", len(ids))
		return nil
	})
}

func runForget(_ *cobra.Command, args []string) error {
	id, err := types.ParseAppID(args[0])
	if err != nil {
		return err
	}

	return withApp(func(a *app) error {
		if err := a.engine.Forget(id); err != nil {
			return err
		}
		printInfo("Forgot %s", id)
		return nil
	})
}

func runDeleteRequest(cmd *cobra.Command, args []string) error {
	id, err := types.ParseAppID(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	// Sizes are measured so the request records how much it frees.
	sizes := true
	opts := appOptionsFromFlags()
	opts.Offline = true
	opts.ComputeSizes = &sizes

	a, err := openApp(cfg, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.engine.Scan(cmd.Context()); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	entry, err := a.engine.RequestDeletion(id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("no prefix found for %s", id)
		}
		return err
	}

	req := entry.Request
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Deletion requested for %s (%s)\n", req.Name, req.AppID)
	for _, p := range req.Paths {
		fmt.Fprintf(w, "  %s\n", p)
	}
	fmt.Fprintf(w, "Size:    %s\n", types.FormatSize(req.Bytes))
	fmt.Fprintf(w, "Request: %s\n", entry.ID)
	if req.Installed {
		printInfo("warning: %s is still installed; Steam recreates its prefix on next launch.", req.Name)
	}
	if req.NonSteam {
		printInfo("warning: %s is a non-Steam shortcut; its game files are not in a Steam library.", req.Name)
	}
	return nil
}
