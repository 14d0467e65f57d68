// Package engine runs reconciliation passes and owns the published entry
// set. Scans run discovery, per-library index and prefix scans, and the
// reconciler; metadata enrichment runs afterwards and updates published
// entries in place as results arrive.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/broadcaster"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/index"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/journal"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/library"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/logging"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/metadata"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/prefix"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/reconcile"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/store"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// ErrNoJournal is returned by RequestDeletion when no journal is configured.
var ErrNoJournal = errors.New("deletion requests need a journal directory")

// Options configures an Engine. Store is required; everything else is
// optional and disables the matching feature when nil.
type Options struct {
	Discovery library.Options
	Store     *store.Store

	// Cache speeds up manifest parsing across runs.
	Cache index.ManifestCache

	// Resolver and Covers provide metadata enrichment and cover validation.
	Resolver *metadata.Resolver
	Covers   *metadata.CoverCache

	// Concurrency bounds concurrent metadata fetches.
	Concurrency int

	Journal *journal.Journal

	// Ignore lists AppIDs never surfaced (Steam runtimes, redistributables).
	Ignore []types.AppID

	// Parallel scans libraries concurrently.
	Parallel bool

	// ComputeSizes measures prefix disk usage during a scan.
	ComputeSizes bool
	SizeWorkers  int

	Now func() time.Time
}

// Engine is the reconciliation core.
type Engine struct {
	opts    Options
	ignore  map[types.AppID]bool
	builder *index.Builder
	sizer   *prefix.Sizer
	bc      *broadcaster.Broadcaster
	now     func() time.Time
	logger  *logging.Logger

	// scanMu serialises scan passes.
	scanMu sync.Mutex

	mu      sync.RWMutex
	current *types.ScanResult
	input   reconcile.Input
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine requires a store")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ignore := make(map[types.AppID]bool, len(opts.Ignore))
	for _, id := range opts.Ignore {
		ignore[id] = true
	}
	return &Engine{
		opts:    opts,
		ignore:  ignore,
		builder: index.NewBuilder(opts.Cache),
		sizer:   prefix.NewSizer(opts.SizeWorkers),
		bc:      broadcaster.New(),
		now:     now,
		logger:  logging.Get("engine"),
	}, nil
}

// Close closes every subscription.
func (e *Engine) Close() {
	e.bc.Close()
}

// libraryScan is the outcome of scanning one library.
type libraryScan struct {
	index    *index.LibraryResult
	prefixes *prefix.Result
}

// Scan runs one reconciliation pass and publishes its entries. Per-library,
// per-manifest and per-prefix failures become diagnostics; the only error
// returned is a context cancellation or a failure to locate the home
// directory.
func (e *Engine) Scan(ctx context.Context) (*types.ScanResult, error) {
	e.scanMu.Lock()
	defer e.scanMu.Unlock()

	start := e.now()

	disc, err := library.Discover(e.opts.Discovery)
	if err != nil {
		return nil, err
	}
	if !disc.SteamFound() {
		e.logger.Warn("steam not found")
	}

	scans := make([]libraryScan, len(disc.Libraries))
	g, gctx := errgroup.WithContext(ctx)
	if !e.opts.Parallel {
		g.SetLimit(1)
	}
	for i, lib := range disc.Libraries {
		g.Go(func() error {
			idx, err := e.builder.ScanLibrary(gctx, lib)
			if err != nil {
				return err
			}
			pfx, err := prefix.Scan(gctx, lib)
			if err != nil {
				return err
			}
			scans[i] = libraryScan{index: idx, prefixes: pfx}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	diags := slices.Clone(disc.Diagnostics)
	indexResults := make([]*index.LibraryResult, 0, len(scans))
	var prefixes []types.PrefixRecord
	for _, s := range scans {
		indexResults = append(indexResults, s.index)
		prefixes = append(prefixes, s.prefixes.Prefixes...)
		diags = append(diags, s.prefixes.Diagnostics...)
	}
	idx := index.Merge(indexResults)
	diags = append(diags, idx.Diagnostics...)

	if e.opts.ComputeSizes {
		if err := e.sizer.Fill(ctx, prefixes); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.rememberNames(idx)
	if d := e.opts.Store.Diagnostic(); d != nil {
		diags = append(diags, *d)
	}

	in := reconcile.Input{
		Installs: idx.All,
		Prefixes: prefixes,
		Ignore:   e.ignore,
	}
	entries, tracked := e.reconcile(in)

	result := &types.ScanResult{
		SteamFound:  disc.SteamFound(),
		Libraries:   disc.Libraries,
		Entries:     entries,
		Tracked:     tracked,
		Diagnostics: diags,
		ScannedAt:   start,
	}
	result.Elapsed = e.now().Sub(start)

	e.publish(result, in)

	e.logger.Info("scan complete",
		"libraries", len(result.Libraries),
		"entries", len(result.Entries),
		"orphaned", result.Count(types.StatusOrphaned),
		"diagnostics", len(result.Diagnostics),
		"duration", result.Elapsed)

	if e.opts.Journal != nil {
		if _, err := e.opts.Journal.LogScan(journal.SummarizeScan(result)); err != nil {
			e.logger.Warn("failed to journal scan", "error", err)
		}
	}

	return cloneResult(result), nil
}

// rememberNames caches manifest names so they survive uninstallation.
func (e *Engine) rememberNames(idx *index.Index) {
	names := make(map[types.AppID]string, len(idx.Records))
	for id, rec := range idx.Records {
		if rec.Name != "" && !e.ignore[id] {
			names[id] = rec.Name
		}
	}
	n, err := e.opts.Store.RememberNames(names)
	if err != nil {
		e.logger.Warn("failed to cache manifest names", "error", err)
		return
	}
	if n > 0 {
		e.logger.Debug("cached manifest names", "count", n)
	}
}

// reconcile runs the reconciler against the current store contents and
// replaces recorded cover paths with validated ones.
func (e *Engine) reconcile(in reconcile.Input) ([]types.ReconciledEntry, []types.InstallRecord) {
	in.Records = e.opts.Store.Snapshot()
	res := reconcile.Reconcile(in)
	if e.opts.Covers != nil {
		for i := range res.Entries {
			res.Entries[i].CoverPath = e.opts.Covers.Find(res.Entries[i].AppID)
		}
	}
	return res.Entries, res.Tracked
}

// publish replaces the entry set and notifies subscribers.
func (e *Engine) publish(result *types.ScanResult, in reconcile.Input) {
	e.mu.Lock()
	prev := e.current
	e.current = cloneResult(result)
	e.input = in
	e.mu.Unlock()

	if prev != nil {
		for _, old := range prev.Entries {
			if _, ok := result.Entry(old.AppID); !ok {
				e.bc.Publish(&broadcaster.Event{Type: broadcaster.EventRemoved, AppID: old.AppID})
			}
		}
	}
	e.bc.Publish(&broadcaster.Event{Type: broadcaster.EventScanned, Count: len(result.Entries)})
}

// Result returns a copy of the last published scan result, or nil before
// the first scan.
func (e *Engine) Result() *types.ScanResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return nil
	}
	return cloneResult(e.current)
}

// Entries returns a copy of the published entry set.
func (e *Engine) Entries() []types.ReconciledEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return nil
	}
	return slices.Clone(e.current.Entries)
}

// Entry returns the published entry for id.
func (e *Engine) Entry(id types.AppID) (types.ReconciledEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return types.ReconciledEntry{}, false
	}
	return e.current.Entry(id)
}

// Subscribe returns a subscription to entry events. With no ids every
// entry's events are delivered.
func (e *Engine) Subscribe(ids ...types.AppID) *broadcaster.Subscriber {
	return e.bc.Subscribe(ids...)
}

// Unsubscribe ends a subscription.
func (e *Engine) Unsubscribe(id string) {
	e.bc.Unsubscribe(id)
}

// Enrich resolves metadata for every entry that lacks a name or a cover,
// had a failed fetch, or whose stored metadata is invalidated or older than
// the resolver's TTL. It returns immediately; updates are applied to the
// published entries, broadcast, and sent on the returned channel, which is
// closed when enrichment finishes.
func (e *Engine) Enrich(ctx context.Context, result *types.ScanResult) <-chan types.EntryUpdate {
	var ids []types.AppID
	if result != nil && e.opts.Resolver != nil {
		for _, entry := range result.Entries {
			if entry.NeedsEnrichment() || e.opts.Resolver.NeedsFetch(entry.AppID) {
				ids = append(ids, entry.AppID)
			}
		}
	}

	// Buffered for every update so enrichment never waits on the caller.
	out := make(chan types.EntryUpdate, len(ids))
	if len(ids) == 0 {
		close(out)
		return out
	}
	e.logger.Debug("enriching entries", "count", len(ids))

	updates := metadata.NewPool(e.opts.Resolver, e.opts.Concurrency).Run(ctx, ids)
	go func() {
		defer close(out)
		for u := range updates {
			if entry, ok := e.apply(u); ok {
				e.bc.Publish(&broadcaster.Event{Type: broadcaster.EventEnriched, AppID: u.AppID, Entry: &entry, Update: &u})
			}
			out <- u
		}
	}()
	return out
}

// apply merges a metadata update into the published entry for u.AppID.
// Custom and manifest names are never replaced by fetched ones.
func (e *Engine) apply(u types.EntryUpdate) (types.ReconciledEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return types.ReconciledEntry{}, false
	}

	i := slices.IndexFunc(e.current.Entries, func(x types.ReconciledEntry) bool { return x.AppID == u.AppID })
	if i < 0 {
		return types.ReconciledEntry{}, false
	}
	entry := e.current.Entries[i]
	if u.Name != "" && (entry.NameSource == types.NameAppID || entry.NameSource == types.NameCached) {
		entry.Name = u.Name
		entry.NameSource = types.NameCached
	}
	if u.CoverPath != "" {
		entry.CoverPath = u.CoverPath
	}
	entry.Retry = u.Partial
	e.current.Entries[i] = entry
	return entry, true
}

// refresh re-reconciles the last scan's inputs after a store change and
// broadcasts the new entry for id.
func (e *Engine) refresh(id types.AppID) {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return
	}
	in := e.input
	e.mu.Unlock()

	entries, tracked := e.reconcile(in)

	e.mu.Lock()
	e.current.Entries = entries
	e.current.Tracked = tracked
	entry, ok := e.current.Entry(id)
	e.mu.Unlock()

	if ok {
		e.bc.Publish(&broadcaster.Event{Type: broadcaster.EventChanged, AppID: id, Entry: &entry})
	}
}

// SetCustomName sets the display name for id. An empty name clears it.
func (e *Engine) SetCustomName(id types.AppID, name string) error {
	if err := e.opts.Store.SetCustomName(id, name); err != nil {
		return fmt.Errorf("setting name for %s: %w", id, err)
	}
	e.refresh(id)
	return nil
}

// SetStatusOverride pins the status of id until cleared. It survives
// rescans and wins over the derived status.
func (e *Engine) SetStatusOverride(id types.AppID, status types.Status) error {
	if err := e.opts.Store.SetStatusOverride(id, status); err != nil {
		return fmt.Errorf("marking %s: %w", id, err)
	}
	e.refresh(id)
	return nil
}

// ClearStatusOverride returns id to its derived status.
func (e *Engine) ClearStatusOverride(id types.AppID) error {
	if err := e.opts.Store.ClearStatusOverride(id); err != nil {
		return fmt.Errorf("unmarking %s: %w", id, err)
	}
	e.refresh(id)
	return nil
}

// InvalidateCache forces the next enrichment of id to refetch metadata.
func (e *Engine) InvalidateCache(id types.AppID) error {
	if err := e.opts.Store.Invalidate(id); err != nil {
		return fmt.Errorf("invalidating %s: %w", id, err)
	}
	e.refresh(id)
	return nil
}

// InvalidateAll forces every entry to refetch metadata.
func (e *Engine) InvalidateAll() error {
	if err := e.opts.Store.InvalidateAll(); err != nil {
		return fmt.Errorf("invalidating metadata: %w", err)
	}
	return nil
}

// Forget removes every stored override and cached datum for id, including
// its downloaded cover.
func (e *Engine) Forget(id types.AppID) error {
	if err := e.opts.Store.Forget(id); err != nil {
		return fmt.Errorf("forgetting %s: %w", id, err)
	}
	if e.opts.Covers != nil {
		if err := e.opts.Covers.Remove(id); err != nil {
			e.logger.Warn("failed to remove cover", "appid", id, "error", err)
		}
	}
	e.refresh(id)
	return nil
}

// RequestDeletion journals a request to delete the prefix of id and its
// duplicates. Nothing is deleted; an external, confirmed operation acts on
// the request.
func (e *Engine) RequestDeletion(id types.AppID) (*journal.Entry, error) {
	if e.opts.Journal == nil {
		return nil, ErrNoJournal
	}
	entry, ok := e.Entry(id)
	if !ok {
		return nil, fmt.Errorf("%w: no prefix for app %s", types.ErrNotFound, id)
	}

	req := journal.NewDeleteRequest(entry)
	logged, err := e.opts.Journal.LogDeleteRequest(req)
	if err != nil {
		return nil, err
	}
	e.logger.Info("deletion requested", "appid", id, "paths", len(req.Paths), "request", logged.ID)
	return logged, nil
}

// cloneResult copies r so callers cannot alias the engine's entry set.
func cloneResult(r *types.ScanResult) *types.ScanResult {
	c := *r
	c.Libraries = slices.Clone(r.Libraries)
	c.Entries = slices.Clone(r.Entries)
	c.Tracked = slices.Clone(r.Tracked)
	c.Diagnostics = slices.Clone(r.Diagnostics)
	return &c
}
