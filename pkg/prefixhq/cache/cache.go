// Package cache keeps parsed appmanifest data in a badger database so that
// repeated scans only re-parse manifests whose mtime or size changed.
//
// The cache is an optimisation: every failure is reported to the caller,
// which logs it and falls back to parsing the file.
package cache

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
)

// Cache provides manifest lookups validated against the filesystem.
type Cache struct {
	store     *Store
	validator *Validator

	mu     sync.Mutex
	hits   int
	misses int
	errors int
}

// Open opens or creates a cache in dir. An empty dir opens an in-memory cache.
func Open(dir string) (*Cache, error) {
	store, err := OpenStore(dir)
	if err != nil {
		return nil, err
	}
	return &Cache{
		store:     store,
		validator: NewValidator(store),
	}, nil
}

// Close closes the cache.
func (c *Cache) Close() error {
	return c.store.Close()
}

// Lookup returns the cached parse of the manifest at path when info still
// matches the file the entry was built from.
func (c *Cache) Lookup(path string, info fs.FileInfo) (*Manifest, bool) {
	library, name := filepath.Dir(path), filepath.Base(path)
	entry, err := c.validator.Validate(library, name, info)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.misses++
		if !IsMiss(err) {
			c.errors++
		}
		return nil, false
	}
	c.hits++
	return entry, true
}

// Parsed pairs a manifest parse with the file info it was read from.
type Parsed struct {
	Info     fs.FileInfo
	Manifest Manifest
}

// Store records the parse of the manifest at path.
func (c *Cache) Store(path string, info fs.FileInfo, m Manifest) error {
	return c.StoreAll(filepath.Dir(path), map[string]Parsed{
		filepath.Base(path): {Info: info, Manifest: m},
	})
}

// StoreAll records the parses of several manifests in dir, keyed by file
// name, in one write batch.
func (c *Cache) StoreAll(dir string, parsed map[string]Parsed) error {
	if len(parsed) == 0 {
		return nil
	}
	entries := make(map[string]*Manifest, len(parsed))
	for name, p := range parsed {
		m := p.Manifest
		m.Version = Version
		m.Mtime = p.Info.ModTime().UnixNano()
		m.Size = p.Info.Size()
		entries[name] = &m
	}
	return c.store.PutBatch(dir, entries)
}

// Prune drops entries under dir whose manifest name is not in present.
func (c *Cache) Prune(dir string, present map[string]bool) (int, error) {
	names, err := c.store.Keys(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, name := range names {
		if present[name] {
			continue
		}
		if err := c.store.Delete(dir, name); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Clear removes every entry under dir.
func (c *Cache) Clear(dir string) error {
	return c.store.DeletePrefix(dir)
}

// ClearAll removes every entry.
func (c *Cache) ClearAll() error {
	return c.store.DeletePrefix("")
}

// Stats describes cache usage since Open.
type Stats struct {
	Entries int `json:"entries" yaml:"entries"`
	Hits    int `json:"hits" yaml:"hits"`
	Misses  int `json:"misses" yaml:"misses"`
	Errors  int `json:"errors" yaml:"errors"`
}

// Stats returns the entry count and the hit/miss counters.
func (c *Cache) Stats() (Stats, error) {
	n, err := c.store.Count()
	if err != nil {
		return Stats{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: n, Hits: c.hits, Misses: c.misses, Errors: c.errors}, nil
}

// IsMiss reports whether err only means the entry was absent or stale.
func IsMiss(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrStale)
}
