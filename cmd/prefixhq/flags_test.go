package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/filter"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/output"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

func TestBuildFilter(t *testing.T) {
	resetViperForTest := func() {
		viper.Reset()
		viper.SetDefault("sort", "appid")
	}

	tests := []struct {
		name           string
		setup          func()
		wantLimit      int
		wantMinSize    int64
		wantOlderThan  time.Duration
		wantStatuses   []types.Status
		wantSortBy     filter.SortField
		wantDescending bool
		wantErr        bool
	}{
		{
			name:       "default values",
			setup:      resetViperForTest,
			wantSortBy: filter.SortAppID,
		},
		{
			name: "custom limit",
			setup: func() {
				resetViperForTest()
				viper.Set("limit", 10)
			},
			wantLimit:  10,
			wantSortBy: filter.SortAppID,
		},
		{
			name: "sort by size is largest first",
			setup: func() {
				resetViperForTest()
				viper.Set("sort", "size")
			},
			wantSortBy:     filter.SortSize,
			wantDescending: true,
		},
		{
			name: "reverse sort on size",
			setup: func() {
				resetViperForTest()
				viper.Set("sort", "size")
				viper.Set("reverse", true)
			},
			wantSortBy:     filter.SortSize,
			wantDescending: false,
		},
		{
			name: "reverse sort on name",
			setup: func() {
				resetViperForTest()
				viper.Set("sort", "name")
				viper.Set("reverse", true)
			},
			wantSortBy:     filter.SortName,
			wantDescending: true,
		},
		{
			name: "sort by age alias",
			setup: func() {
				resetViperForTest()
				viper.Set("sort", "age")
			},
			wantSortBy: filter.SortModified,
		},
		{
			name: "statuses",
			setup: func() {
				resetViperForTest()
				viper.Set("status", "orphaned, marked")
			},
			wantStatuses: []types.Status{types.StatusOrphaned, types.StatusManuallyMarked},
			wantSortBy:   filter.SortAppID,
		},
		{
			name: "min size and older than",
			setup: func() {
				resetViperForTest()
				viper.Set("min_size", "1GB")
				viper.Set("older_than", "30d")
			},
			wantMinSize:   1_000_000_000,
			wantOlderThan: 30 * filter.Day,
			wantSortBy:    filter.SortAppID,
		},
		{
			name: "invalid status",
			setup: func() {
				resetViperForTest()
				viper.Set("status", "broken")
			},
			wantErr: true,
		},
		{
			name: "invalid sort field",
			setup: func() {
				resetViperForTest()
				viper.Set("sort", "invalid")
			},
			wantErr: true,
		},
		{
			name: "invalid min size",
			setup: func() {
				resetViperForTest()
				viper.Set("min_size", "lots")
			},
			wantErr: true,
		},
		{
			name: "invalid duration",
			setup: func() {
				resetViperForTest()
				viper.Set("newer_than", "soon")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			t.Cleanup(viper.Reset)

			f, err := buildFilter()
			if tt.wantErr {
				if err == nil {
					t.Fatal("buildFilter() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildFilter() error = %v", err)
			}

			if f.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", f.Limit, tt.wantLimit)
			}
			if f.MinSize != tt.wantMinSize {
				t.Errorf("MinSize = %d, want %d", f.MinSize, tt.wantMinSize)
			}
			if f.OlderThan != tt.wantOlderThan {
				t.Errorf("OlderThan = %v, want %v", f.OlderThan, tt.wantOlderThan)
			}
			if f.SortBy != tt.wantSortBy {
				t.Errorf("SortBy = %v, want %v", f.SortBy, tt.wantSortBy)
			}
			if f.SortDescending != tt.wantDescending {
				t.Errorf("SortDescending = %v, want %v", f.SortDescending, tt.wantDescending)
			}
			if len(f.Statuses) != len(tt.wantStatuses) {
				t.Fatalf("Statuses = %v, want %v", f.Statuses, tt.wantStatuses)
			}
			for i, s := range tt.wantStatuses {
				if f.Statuses[i] != s {
					t.Errorf("Statuses[%d] = %v, want %v", i, f.Statuses[i], s)
				}
			}
		})
	}
}

func TestParseCommaSeparated(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b ,, c ", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		got := parseCommaSeparated(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("parseCommaSeparated(%q) = %v, want %v", tt.input, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseCommaSeparated(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
			}
		}
	}
}

func TestParseAppIDs(t *testing.T) {
	ids, err := parseAppIDs([]string{"440", "3000000001"})
	if err != nil {
		t.Fatalf("parseAppIDs() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != 440 || ids[1] != 3000000001 {
		t.Errorf("parseAppIDs() = %v", ids)
	}

	if _, err := parseAppIDs([]string{"440", "tf2"}); err == nil {
		t.Error("parseAppIDs() expected error for non-numeric AppID")
	}
}

func TestBuildFormatter(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Reset()
	f, err := buildFormatter(nil)
	if err != nil {
		t.Fatalf("buildFormatter() error = %v", err)
	}
	if _, ok := f.(*output.PrettyFormatter); !ok {
		t.Errorf("default formatter = %T, want *output.PrettyFormatter", f)
	}

	viper.Set("output", "json")
	if _, err := buildFormatter(nil); err != nil {
		t.Errorf("buildFormatter(json) error = %v", err)
	}

	viper.Set("output", "template")
	if _, err := buildFormatter(nil); err == nil {
		t.Error("buildFormatter(template) without --template expected error")
	}
	viper.Set("template", "{{.AppID}}")
	if _, err := buildFormatter(nil); err != nil {
		t.Errorf("buildFormatter(template) error = %v", err)
	}

	viper.Set("output", "xml")
	if _, err := buildFormatter(nil); err == nil {
		t.Error("buildFormatter(xml) expected error")
	}
}
