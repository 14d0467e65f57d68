// Package index builds the AppID to install-record mapping from the
// appmanifest_<id>.acf files of each Steam library.
package index

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/cache"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/logging"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/vdf"
)

var manifestPattern = regexp.MustCompile(`^appmanifest_(\d+)\.acf$`)

// ManifestCache is the subset of *cache.Cache used by the builder.
type ManifestCache interface {
	Lookup(path string, info fs.FileInfo) (*cache.Manifest, bool)
	StoreAll(dir string, parsed map[string]cache.Parsed) error
	Prune(dir string, present map[string]bool) (int, error)
}

// Index is the install index over all libraries.
type Index struct {
	// Records holds one record per AppID after the cross-library merge.
	Records map[types.AppID]types.InstallRecord

	// All holds every record read, including cross-library duplicates, in
	// discovery order.
	All []types.InstallRecord

	Diagnostics []types.Diagnostic
}

// Builder reads manifests from libraries.
type Builder struct {
	cache  ManifestCache
	logger *logging.Logger
}

// NewBuilder creates a builder. c may be nil to disable caching.
func NewBuilder(c ManifestCache) *Builder {
	return &Builder{cache: c, logger: logging.Get("index")}
}

// LibraryResult is the outcome of scanning one library.
type LibraryResult struct {
	Records     []types.InstallRecord
	Diagnostics []types.Diagnostic
}

// ScanLibrary reads every appmanifest in lib. Unreadable or unparseable
// manifests are skipped with a diagnostic; an unreadable steamapps directory
// yields no records. The only error returned is ctx's.
func (b *Builder) ScanLibrary(ctx context.Context, lib types.LibraryRoot) (*LibraryResult, error) {
	res := &LibraryResult{}
	dir := lib.SteamApps()

	entries, err := os.ReadDir(dir)
	if err != nil {
		err = types.ClassifyFSError(err)
		b.logger.Warn("cannot list steamapps", "path", dir, "error", err)
		res.Diagnostics = append(res.Diagnostics, types.NewDiagnostic(types.KindAccess, dir, err))
		return res, nil
	}

	present := make(map[string]bool)
	parsed := make(map[string]cache.Parsed)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m := manifestPattern.FindStringSubmatch(entry.Name())
		if m == nil || entry.IsDir() {
			continue
		}
		id, err := types.ParseAppID(m[1])
		if err != nil {
			continue
		}
		present[entry.Name()] = true

		path := filepath.Join(dir, entry.Name())
		rec, miss, diag := b.readManifest(path, id, lib)
		if diag != nil {
			res.Diagnostics = append(res.Diagnostics, *diag)
			continue
		}
		if miss != nil {
			parsed[entry.Name()] = *miss
		}
		res.Records = append(res.Records, rec)
	}

	if b.cache != nil {
		if err := b.cache.StoreAll(dir, parsed); err != nil {
			b.logger.Debug("manifest cache write failed", "path", dir, "error", err)
		}
		if n, err := b.cache.Prune(dir, present); err != nil {
			b.logger.Debug("manifest cache prune failed", "path", dir, "error", err)
		} else if n > 0 {
			b.logger.Debug("pruned manifest cache", "path", dir, "removed", n)
		}
	}

	b.logger.Debug("library indexed", "library", lib.Path, "manifests", len(res.Records))
	return res, nil
}

// readManifest builds the install record for path. A manifest parsed from
// disk rather than the cache is returned as miss for the caller to store.
func (b *Builder) readManifest(path string, id types.AppID, lib types.LibraryRoot) (types.InstallRecord, *cache.Parsed, *types.Diagnostic) {
	info, err := os.Stat(path)
	if err != nil {
		err = types.ClassifyFSError(err)
		b.logger.Warn("manifest unreadable", "path", path, "error", err)
		d := types.NewDiagnostic(types.KindAccess, path, err)
		return types.InstallRecord{}, nil, &d
	}

	var (
		parsed cache.Manifest
		miss   *cache.Parsed
		cached bool
	)
	if b.cache != nil {
		if c, ok := b.cache.Lookup(path, info); ok {
			parsed, cached = *c, true
		}
	}

	if !cached {
		parsed, err = ParseManifest(path)
		if err != nil {
			kind := types.KindParse
			if os.IsNotExist(err) || os.IsPermission(err) {
				kind = types.KindAccess
				err = types.ClassifyFSError(err)
			}
			b.logger.Warn("skipping manifest", "path", path, "error", err)
			d := types.NewDiagnostic(kind, path, err)
			return types.InstallRecord{}, nil, &d
		}
		miss = &cache.Parsed{Info: info, Manifest: parsed}
	}

	if parsed.AppID != 0 && types.AppID(parsed.AppID) != id {
		b.logger.Debug("manifest appid disagrees with filename, using filename",
			"path", path, "file", id, "content", parsed.AppID)
	}

	rec := types.InstallRecord{
		AppID:        id,
		Name:         parsed.Name,
		Library:      lib.Path,
		LibraryOrder: lib.Order,
		ManifestPath: path,
		InstallDir:   parsed.InstallDir,
		StateFlags:   parsed.StateFlags,
		State:        types.ClassifyStateFlags(parsed.StateFlags, parsed.HasFlags),
		SizeOnDisk:   parsed.SizeOnDisk,
		ModTime:      info.ModTime(),
	}
	if parsed.LastUpdated > 0 {
		rec.LastUpdated = time.Unix(parsed.LastUpdated, 0)
	}
	return rec, miss, nil
}

// ParseManifest parses an appmanifest file. Any parse error, including a
// truncated file, makes the whole manifest unusable.
func ParseManifest(path string) (cache.Manifest, error) {
	m, err := vdf.ParseFile(path)
	if err != nil {
		return cache.Manifest{}, err
	}

	state := m.Map("AppState")
	if state == nil {
		return cache.Manifest{}, fmt.Errorf("%s: %w", path, &vdf.ParseError{Reason: "missing AppState section"})
	}

	out := cache.Manifest{
		Name:       state.String("name"),
		InstallDir: state.String("installdir"),
	}
	if id, err := types.ParseAppID(state.String("appid")); err == nil {
		out.AppID = uint32(id)
	}
	if v, err := strconv.ParseUint(state.String("StateFlags"), 10, 32); err == nil {
		out.StateFlags = uint32(v)
		out.HasFlags = true
	}
	if v, err := strconv.ParseInt(state.String("LastUpdated"), 10, 64); err == nil {
		out.LastUpdated = v
	}
	if v, err := strconv.ParseInt(state.String("SizeOnDisk"), 10, 64); err == nil {
		out.SizeOnDisk = v
	}
	return out, nil
}

// Merge combines per-library results, in discovery order, into an Index.
// A later library replaces an earlier record for the same AppID only when
// the later record is install-complete and the earlier one is not.
func Merge(results []*LibraryResult) *Index {
	idx := &Index{Records: make(map[types.AppID]types.InstallRecord)}
	for _, r := range results {
		if r == nil {
			continue
		}
		idx.Diagnostics = append(idx.Diagnostics, r.Diagnostics...)
		for _, rec := range r.Records {
			idx.All = append(idx.All, rec)
			prev, ok := idx.Records[rec.AppID]
			if !ok || (rec.Complete() && !prev.Complete()) {
				idx.Records[rec.AppID] = rec
			}
		}
	}
	return idx
}

// Build scans libs sequentially and merges the results.
func (b *Builder) Build(ctx context.Context, libs []types.LibraryRoot) (*Index, error) {
	results := make([]*LibraryResult, 0, len(libs))
	for _, lib := range libs {
		r, err := b.ScanLibrary(ctx, lib)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return Merge(results), nil
}
