// Package output provides formatters for displaying reconciled prefix
// entries in various output formats (pretty, plain, json, yaml, etc.).
//
// The package uses a registry pattern to allow registration of multiple
// formatter implementations that can be selected at runtime.
//
// Basic usage:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, output.NewResult(scan, entries)); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// Result contains the complete output data for formatting.
type Result struct {
	// Entries contains the entries to display, already filtered and sorted.
	Entries []types.ReconciledEntry

	// Libraries lists every library root the scan visited.
	Libraries []types.LibraryRoot

	// SteamFound is false when no Steam install was detected.
	SteamFound bool

	// Total is the number of entries before filtering.
	Total int

	// Diagnostics contains non-fatal failures isolated during the scan.
	Diagnostics []types.Diagnostic

	// Elapsed is the time taken by the scan.
	Elapsed time.Duration

	// ScannedAt is when the scan completed.
	ScannedAt time.Time

	// Interrupted indicates the scan was cancelled by the user.
	Interrupted bool
}

// NewResult builds a Result from a scan and the entries selected for display.
func NewResult(scan *types.ScanResult, entries []types.ReconciledEntry) *Result {
	if scan == nil {
		return &Result{Entries: entries, Total: len(entries)}
	}
	return &Result{
		Entries:     entries,
		Libraries:   scan.Libraries,
		SteamFound:  scan.SteamFound,
		Total:       len(scan.Entries),
		Diagnostics: scan.Diagnostics,
		Elapsed:     scan.Elapsed,
		ScannedAt:   scan.ScannedAt,
	}
}

// TotalSize returns the summed size of all displayed prefixes with a known
// size, including their duplicates.
func (r *Result) TotalSize() int64 {
	var total int64
	for _, e := range r.Entries {
		if e.Prefix.Size > 0 {
			total += e.Prefix.Size
		}
		for _, d := range e.Duplicates {
			if d.Size > 0 {
				total += d.Size
			}
		}
	}
	return total
}

// Count returns the number of displayed entries with the given status.
func (r *Result) Count(status types.Status) int {
	n := 0
	for _, e := range r.Entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	// It returns an error if formatting fails.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry.
// It will replace any existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
