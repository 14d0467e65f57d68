package filter

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// Filter defines criteria for filtering, sorting, and limiting entries.
type Filter struct {
	// Statuses keeps only entries with one of these statuses. Empty keeps all.
	Statuses []types.Status

	// Search keeps entries whose name contains this text (case-insensitive)
	// or whose AppID equals it.
	Search string

	// Include contains glob patterns matched against the lowercased name.
	// If non-empty, entries must match at least one.
	Include []string

	// Exclude contains glob patterns. Matching entries are excluded.
	Exclude []string

	// NonSteamOnly keeps only shortcut prefixes.
	NonSteamOnly bool

	// DuplicatesOnly keeps only entries with stale copies in other libraries.
	DuplicatesOnly bool

	// MinSize is the minimum prefix size in bytes. Entries with an unknown
	// size pass.
	MinSize int64

	// OlderThan excludes prefixes modified more recently than this duration ago.
	OlderThan time.Duration

	// NewerThan excludes prefixes modified longer ago than this duration.
	NewerThan time.Duration

	// SortBy specifies the field to sort results by.
	SortBy SortField

	// SortDescending specifies whether to sort in descending order.
	SortDescending bool

	// Limit is the maximum number of entries to return. 0 means unlimited.
	Limit int

	now func() time.Time
}

// Option is a functional option for configuring a Filter.
type Option func(*Filter)

// New creates a new Filter with the given options.
// Default values:
//   - Limit: 0 (unlimited)
//   - SortBy: SortAppID
//   - SortDescending: false
func New(opts ...Option) *Filter {
	f := &Filter{
		SortBy: SortAppID,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// WithStatuses sets the statuses to keep.
func WithStatuses(statuses ...types.Status) Option {
	return func(f *Filter) {
		f.Statuses = statuses
	}
}

// WithSearch sets the name search text.
func WithSearch(s string) Option {
	return func(f *Filter) {
		f.Search = strings.TrimSpace(s)
	}
}

// WithInclude sets the include glob patterns.
func WithInclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Include = patterns
	}
}

// WithExclude sets the exclude glob patterns.
func WithExclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Exclude = patterns
	}
}

// WithNonSteamOnly keeps only shortcut prefixes.
func WithNonSteamOnly(v bool) Option {
	return func(f *Filter) {
		f.NonSteamOnly = v
	}
}

// WithDuplicatesOnly keeps only entries with duplicate prefixes.
func WithDuplicatesOnly(v bool) Option {
	return func(f *Filter) {
		f.DuplicatesOnly = v
	}
}

// WithMinSize sets the minimum prefix size in bytes.
// If minSize < 0, it is set to 0.
func WithMinSize(minSize int64) Option {
	return func(f *Filter) {
		if minSize < 0 {
			minSize = 0
		}
		f.MinSize = minSize
	}
}

// WithOlderThan sets the minimum age of prefixes to include.
func WithOlderThan(d time.Duration) Option {
	return func(f *Filter) {
		f.OlderThan = d
	}
}

// WithNewerThan sets the maximum age of prefixes to include.
func WithNewerThan(d time.Duration) Option {
	return func(f *Filter) {
		f.NewerThan = d
	}
}

// WithSortBy sets the field to sort results by.
func WithSortBy(field SortField) Option {
	return func(f *Filter) {
		f.SortBy = field
	}
}

// WithSortDescending sets whether to sort in descending order.
func WithSortDescending(desc bool) Option {
	return func(f *Filter) {
		f.SortDescending = desc
	}
}

// WithLimit sets the maximum number of entries to return.
// If limit <= 0, it is set to 0 (unlimited).
func WithLimit(limit int) Option {
	return func(f *Filter) {
		if limit < 0 {
			limit = 0
		}
		f.Limit = limit
	}
}

// WithNow overrides the clock used for age filters.
func WithNow(now func() time.Time) Option {
	return func(f *Filter) {
		f.now = now
	}
}

// Match returns true if the entry matches all filter criteria.
func (f *Filter) Match(e types.ReconciledEntry) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, e.Status) {
		return false
	}
	if f.NonSteamOnly && !e.NonSteam {
		return false
	}
	if f.DuplicatesOnly && !e.HasDuplicates() {
		return false
	}
	if !f.matchSearch(e) {
		return false
	}
	if !f.matchSize(e) {
		return false
	}
	if !f.matchAge(e) {
		return false
	}
	return f.matchPatterns(e)
}

// matchSearch checks the name substring or exact AppID.
func (f *Filter) matchSearch(e types.ReconciledEntry) bool {
	if f.Search == "" {
		return true
	}
	if e.AppID.String() == f.Search {
		return true
	}
	return strings.Contains(strings.ToLower(e.Name), strings.ToLower(f.Search))
}

// matchSize checks if the prefix meets the minimum size requirement.
func (f *Filter) matchSize(e types.ReconciledEntry) bool {
	return f.MinSize <= 0 || e.Prefix.Size < 0 || e.Prefix.Size >= f.MinSize
}

// matchAge checks if the prefix meets the age requirements.
func (f *Filter) matchAge(e types.ReconciledEntry) bool {
	now := f.now()

	if f.OlderThan > 0 && e.Prefix.ModTime.After(now.Add(-f.OlderThan)) {
		return false
	}
	if f.NewerThan > 0 && e.Prefix.ModTime.Before(now.Add(-f.NewerThan)) {
		return false
	}
	return true
}

// matchPatterns checks if the name matches include/exclude patterns.
func (f *Filter) matchPatterns(e types.ReconciledEntry) bool {
	name := strings.ToLower(e.Name)
	if matchesAnyPattern(name, f.Exclude) {
		return false
	}
	if len(f.Include) > 0 && !matchesAnyPattern(name, f.Include) {
		return false
	}
	return true
}

// matchesAnyPattern returns true if name matches any of the glob patterns.
func matchesAnyPattern(name string, patterns []string) bool {
	for _, pattern := range patterns {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			continue // Skip invalid patterns
		}
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Sort returns a sorted copy of entries. Ties are broken by AppID so the
// order is stable across runs. The original slice is not modified.
func (f *Filter) Sort(entries []types.ReconciledEntry) []types.ReconciledEntry {
	sorted := slices.Clone(entries)
	if sorted == nil {
		return []types.ReconciledEntry{}
	}

	slices.SortFunc(sorted, func(a, b types.ReconciledEntry) int {
		var result int
		switch f.SortBy {
		case SortName:
			result = cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case SortSize:
			result = cmp.Compare(a.Prefix.Size, b.Prefix.Size)
		case SortModified:
			result = a.Prefix.ModTime.Compare(b.Prefix.ModTime)
		}
		if result == 0 {
			result = cmp.Compare(a.AppID, b.AppID)
		}

		if f.SortDescending {
			return -result
		}
		return result
	})

	return sorted
}

// Apply runs the complete filtering pipeline: Match, Sort, and Limit.
func (f *Filter) Apply(entries []types.ReconciledEntry) []types.ReconciledEntry {
	var matched []types.ReconciledEntry
	for _, e := range entries {
		if f.Match(e) {
			matched = append(matched, e)
		}
	}

	sorted := f.Sort(matched)

	if f.Limit > 0 && len(sorted) > f.Limit {
		return sorted[:f.Limit]
	}
	return sorted
}
