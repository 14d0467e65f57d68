package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/config"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/filter"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/output"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// addScanFlags registers the filter, sort and scan flags shared by the
// scan and watch commands.
func addScanFlags(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringP("status", "S", "", "only these statuses, comma separated (installed, orphaned, marked)")
	fl.String("search", "", "only names containing this text, or this exact AppID")
	fl.String("include", "", "only names matching these glob patterns, comma separated")
	fl.StringSlice("exclude", nil, "hide names matching these glob patterns")
	fl.Bool("non-steam", false, "only non-Steam shortcut prefixes")
	fl.Bool("duplicates", false, "only prefixes with copies in several libraries")
	fl.String("min-size", "", "only prefixes at least this large (e.g. 500MB, 2GiB); implies --sizes")
	fl.String("older-than", "", "only prefixes untouched for this long (e.g. 30d, 6mo)")
	fl.String("newer-than", "", "only prefixes modified within this long")
	fl.String("sort", "appid", "sort by appid, name, size or modified")
	fl.BoolP("reverse", "r", false, "reverse the sort order")
	fl.IntP("limit", "l", 0, "maximum number of prefixes to show (0 = all)")
	fl.Bool("sizes", false, "measure prefix disk usage")
	fl.Bool("no-enrich", false, "skip fetching missing names and covers")
	fl.String("template", "", "Go template for -o template")
}

// bindFlags binds cmd's local flags to viper keys with dashes replaced by
// underscores. Binding happens at run time because scan and watch share
// flag names.
func bindFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = viper.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
}

// buildFilter creates a filter.Filter from the CLI flags.
func buildFilter() (*filter.Filter, error) {
	opts := []filter.Option{filter.WithLimit(viper.GetInt("limit"))}

	if s := viper.GetString("status"); s != "" {
		var statuses []types.Status
		for _, part := range parseCommaSeparated(s) {
			st, err := filter.ParseStatus(part)
			if err != nil {
				return nil, err
			}
			statuses = append(statuses, st)
		}
		opts = append(opts, filter.WithStatuses(statuses...))
	}

	if s := viper.GetString("search"); s != "" {
		opts = append(opts, filter.WithSearch(s))
	}
	if s := viper.GetString("include"); s != "" {
		opts = append(opts, filter.WithInclude(parseCommaSeparated(s)...))
	}
	if exclude := viper.GetStringSlice("exclude"); len(exclude) > 0 {
		opts = append(opts, filter.WithExclude(exclude...))
	}
	opts = append(opts,
		filter.WithNonSteamOnly(viper.GetBool("non_steam")),
		filter.WithDuplicatesOnly(viper.GetBool("duplicates")),
	)

	if s := viper.GetString("min_size"); s != "" {
		n, err := filter.ParseSize(s)
		if err != nil {
			return nil, fmt.Errorf("invalid min-size %q: %w", s, err)
		}
		opts = append(opts, filter.WithMinSize(n))
	}
	if s := viper.GetString("older_than"); s != "" {
		d, err := filter.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid older-than %q: %w", s, err)
		}
		opts = append(opts, filter.WithOlderThan(d))
	}
	if s := viper.GetString("newer_than"); s != "" {
		d, err := filter.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid newer-than %q: %w", s, err)
		}
		opts = append(opts, filter.WithNewerThan(d))
	}

	sortStr := viper.GetString("sort")
	if sortStr == "" {
		sortStr = "appid"
	}
	sortField, err := filter.ParseSortField(sortStr)
	if err != nil {
		return nil, err
	}
	opts = append(opts, filter.WithSortBy(sortField))

	// Size sorts largest first; everything else sorts ascending. --reverse
	// flips the natural order.
	descending := sortField == filter.SortSize
	if viper.GetBool("reverse") {
		descending = !descending
	}
	opts = append(opts, filter.WithSortDescending(descending))

	return filter.New(opts...), nil
}

// wantSizes reports whether the scan must measure prefixes: explicitly
// requested, or needed by a size filter or sort.
func wantSizes(cmd *cobra.Command, cfg *config.Config) bool {
	if cmd.Flags().Changed("sizes") {
		return viper.GetBool("sizes")
	}
	if viper.GetString("min_size") != "" || strings.EqualFold(viper.GetString("sort"), "size") {
		return true
	}
	return cfg.Scan.ComputeSizes
}

// buildFormatter resolves the output format from the flag, then the
// configuration, then the default.
func buildFormatter(cfg *config.Config) (output.Formatter, error) {
	format := viper.GetString("output")
	if format == "" && cfg != nil {
		format = cfg.Output.Format
	}
	if format == "" {
		format = config.DefaultFormat
	}

	if format == "template" {
		tmpl := viper.GetString("template")
		if tmpl == "" {
			return nil, fmt.Errorf("--template is required when using -o template")
		}
		return output.NewTemplateFormatter(tmpl), nil
	}

	f, err := output.Get(format)
	if err != nil {
		return nil, fmt.Errorf("unknown output format %q: available formats are %v", format, output.Available())
	}
	return f, nil
}

// parseCommaSeparated splits a comma-separated string and trims whitespace.
func parseCommaSeparated(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// parseAppIDs parses command arguments as AppIDs.
func parseAppIDs(args []string) ([]types.AppID, error) {
	ids := make([]types.AppID, 0, len(args))
	for _, arg := range args {
		id, err := types.ParseAppID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
