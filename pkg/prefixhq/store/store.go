// Package store persists per-AppID user overrides and cached metadata.
//
// The store is the only mutable state shared between the scan, the
// metadata workers and user actions. Every mutation is a read-modify-write
// under one mutex followed by an atomic save (temp file, fsync, rename).
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/logging"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// FormatVersion is the version written to new files.
const FormatVersion = 2

// Record is the durable state kept for one AppID. All fields are optional.
type Record struct {
	CustomName      string       `json:"custom_name,omitempty"`
	StatusOverride  types.Status `json:"status_override,omitempty"`
	CachedName      string       `json:"cached_name,omitempty"`
	CachedCoverPath string       `json:"cached_cover_path,omitempty"`
	LastFetchTime   time.Time    `json:"last_fetch_time,omitzero"`

	// Retry is set when the last metadata fetch failed.
	Retry     bool   `json:"retry,omitempty"`
	LastError string `json:"last_error,omitempty"`

	// Invalidated forces the next resolve to bypass cached metadata.
	Invalidated bool `json:"invalidated,omitempty"`
}

// IsZero reports whether the record carries no information.
func (r Record) IsZero() bool {
	return r == Record{}
}

// fileFormat is the on-disk layout. The legacy maps are written alongside
// the versioned data so older releases can still read custom names.
type fileFormat struct {
	Version        int               `json:"version"`
	Apps           map[string]Record `json:"apps"`
	InstalledGames map[string]string `json:"installed_games,omitempty"`
	CustomNames    map[string]string `json:"custom_names,omitempty"`
}

// Store is a JSON-file backed AppID to Record mapping.
type Store struct {
	path   string
	logger *logging.Logger

	mu      sync.Mutex
	records map[types.AppID]Record

	// corrupt is set when the file existed but could not be read; the file
	// is moved aside on the first successful save.
	corrupt    bool
	diagnostic *types.Diagnostic
	now        func() time.Time
}

// Open loads the store at path. A missing file yields an empty store. An
// unreadable or malformed file also yields an empty store, with Corrupt
// reporting true; the file is left untouched until the first save.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path cannot be empty")
	}

	s := &Store{
		path:    path,
		logger:  logging.Get("store"),
		records: make(map[types.AppID]Record),
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		s.markCorrupt(fmt.Errorf("%w: %w", types.ErrStoreCorrupt, err))
		return s, nil
	}

	records, err := decode(data)
	if err != nil {
		s.markCorrupt(fmt.Errorf("%w: %w", types.ErrStoreCorrupt, err))
		return s, nil
	}
	s.records = records
	s.logger.Debug("store loaded", "path", path, "records", len(records))
	return s, nil
}

func (s *Store) markCorrupt(err error) {
	s.corrupt = true
	d := types.NewDiagnostic(types.KindStore, s.path, err)
	s.diagnostic = &d
	s.logger.Warn("store unreadable, starting empty", "path", s.path, "error", err)
}

// decode accepts both the versioned layout and the original
// {"installed_games": {...}, "custom_names": {...}} layout.
func decode(data []byte) (map[types.AppID]Record, error) {
	records := make(map[types.AppID]Record)
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}

	var raw fileFormat
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	if raw.Apps != nil || raw.Version > 0 {
		for key, rec := range raw.Apps {
			id, err := types.ParseAppID(key)
			if err != nil {
				continue
			}
			if !rec.IsZero() {
				records[id] = rec
			}
		}
		return records, nil
	}

	for key, name := range raw.InstalledGames {
		id, err := types.ParseAppID(key)
		if err != nil || name == "" {
			continue
		}
		rec := records[id]
		rec.CachedName = name
		records[id] = rec
	}
	for key, name := range raw.CustomNames {
		id, err := types.ParseAppID(key)
		if err != nil || name == "" {
			continue
		}
		rec := records[id]
		rec.CustomName = name
		records[id] = rec
	}
	return records, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Corrupt reports whether the file could not be read at Open and has not
// been replaced by a successful save yet.
func (s *Store) Corrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.corrupt
}

// Diagnostic returns the StoreCorruption diagnostic raised at Open, if any.
func (s *Store) Diagnostic() *types.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diagnostic
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Get returns the record for id.
func (s *Store) Get(id types.AppID) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Snapshot returns a copy of every record.
func (s *Store) Snapshot() map[types.AppID]Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[types.AppID]Record, len(s.records))
	for id, rec := range s.records {
		out[id] = rec
	}
	return out
}

// Update applies fn to the record for id and saves. A record left empty is
// removed. If the save fails the in-memory state is rolled back.
func (s *Store) Update(id types.AppID, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.records[id]
	rec := prev
	fn(&rec)
	rec.LastFetchTime = normalizeTime(rec.LastFetchTime)

	if rec == prev && existed {
		return nil
	}
	if rec.IsZero() {
		if !existed {
			return nil
		}
		delete(s.records, id)
	} else {
		s.records[id] = rec
	}

	if err := s.saveLocked(); err != nil {
		if existed {
			s.records[id] = prev
		} else {
			delete(s.records, id)
		}
		return err
	}
	return nil
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}

// SetCustomName sets the user's display name for id. An empty name clears it.
func (s *Store) SetCustomName(id types.AppID, name string) error {
	return s.Update(id, func(r *Record) { r.CustomName = name })
}

// SetStatusOverride pins the status of id until ClearStatusOverride.
func (s *Store) SetStatusOverride(id types.AppID, status types.Status) error {
	if _, err := types.ParseOverride(string(status)); err != nil {
		return err
	}
	return s.Update(id, func(r *Record) { r.StatusOverride = status })
}

// ClearStatusOverride removes a manual status override.
func (s *Store) ClearStatusOverride(id types.AppID) error {
	return s.Update(id, func(r *Record) { r.StatusOverride = "" })
}

// Invalidate marks cached metadata for id as stale so the next resolve
// fetches again. Custom names and overrides are kept.
func (s *Store) Invalidate(id types.AppID) error {
	return s.Update(id, func(r *Record) {
		if r.hasMetadata() {
			r.Invalidated = true
		}
	})
}

// hasMetadata reports whether r holds fetched metadata or a fetch attempt
// that invalidation can reset.
func (r Record) hasMetadata() bool {
	return r.CachedName != "" || r.CachedCoverPath != "" || !r.LastFetchTime.IsZero() || r.Retry
}

// InvalidateAll invalidates the cached metadata of every record.
func (s *Store) InvalidateAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := make(map[types.AppID]Record, len(s.records))
	changed := false
	for id, rec := range s.records {
		prev[id] = rec
		if rec.hasMetadata() {
			rec.Invalidated = true
			changed = changed || rec != prev[id]
			s.records[id] = rec
		}
	}
	if !changed {
		return nil
	}
	if err := s.saveLocked(); err != nil {
		s.records = prev
		return err
	}
	return nil
}

// RecordFetch stores the outcome of a successful metadata fetch. An empty
// name or cover keeps the previously cached value.
func (s *Store) RecordFetch(id types.AppID, name, coverPath string, at time.Time) error {
	return s.Update(id, func(r *Record) {
		if name != "" {
			r.CachedName = name
		}
		if coverPath != "" {
			r.CachedCoverPath = coverPath
		}
		r.LastFetchTime = at
		r.Retry = false
		r.LastError = ""
		r.Invalidated = false
	})
}

// RecordFailure marks id for retry after a failed fetch.
func (s *Store) RecordFailure(id types.AppID, fetchErr error) error {
	return s.Update(id, func(r *Record) {
		r.Retry = true
		r.LastError = fetchErr.Error()
	})
}

// RememberNames caches manifest names for AppIDs that have no cached name
// yet, so an uninstalled game's orphaned prefix keeps a readable name.
// All changes are written in one save. It returns how many were added.
func (s *Store) RememberNames(names map[types.AppID]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := make(map[types.AppID]Record)
	existed := make(map[types.AppID]bool)
	for id, name := range names {
		rec, ok := s.records[id]
		if name == "" || rec.CachedName != "" {
			continue
		}
		prev[id], existed[id] = rec, ok
		rec.CachedName = name
		s.records[id] = rec
	}
	if len(prev) == 0 {
		return 0, nil
	}

	if err := s.saveLocked(); err != nil {
		for id, rec := range prev {
			if existed[id] {
				s.records[id] = rec
			} else {
				delete(s.records, id)
			}
		}
		return 0, err
	}
	return len(prev), nil
}

// Forget removes everything known about id. This is the only way a record
// with user data is deleted.
func (s *Store) Forget(id types.AppID) error {
	return s.Update(id, func(r *Record) { *r = Record{} })
}

// Save writes the store to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := encode(s.records)
	if err != nil {
		return fmt.Errorf("encoding store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	if s.corrupt {
		aside := fmt.Sprintf("%s.corrupt-%s", s.path, s.now().UTC().Format("20060102T150405"))
		if err := os.Rename(s.path, aside); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("preserving corrupt store: %w", err)
		}
		s.logger.Warn("corrupt store moved aside", "path", aside)
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}
	s.corrupt = false
	return nil
}

func encode(records map[types.AppID]Record) ([]byte, error) {
	f := fileFormat{
		Version: FormatVersion,
		Apps:    make(map[string]Record, len(records)),
	}
	for id, rec := range records {
		key := id.String()
		f.Apps[key] = rec
		if rec.CachedName != "" {
			if f.InstalledGames == nil {
				f.InstalledGames = make(map[string]string)
			}
			f.InstalledGames[key] = rec.CachedName
		}
		if rec.CustomName != "" {
			if f.CustomNames == nil {
				f.CustomNames = make(map[string]string)
			}
			f.CustomNames[key] = rec.CustomName
		}
	}
	return json.MarshalIndent(f, "", "  ")
}

// writeFileAtomic writes data to a temp file in the target directory,
// syncs it and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// IDs returns the AppIDs with records, in numeric order.
func (s *Store) IDs() []types.AppID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]types.AppID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
