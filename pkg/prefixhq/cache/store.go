package cache

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a cache entry doesn't exist.
var ErrNotFound = errors.New("cache entry not found")

// Store wraps Badger for cache operations.
type Store struct {
	db *badger.DB
}

// OpenStore opens or creates a cache store at the given directory.
// An empty path opens an in-memory store.
func OpenStore(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves the entry for a manifest.
func (s *Store) Get(library, name string) (*Manifest, error) {
	var entry Manifest
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(MakeKey(library, name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(entry.Decode)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// PutBatch stores several entries of one library in a single write batch.
func (s *Store) PutBatch(library string, entries map[string]*Manifest) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for name, entry := range entries {
		value, err := entry.Encode()
		if err != nil {
			return err
		}
		if err := wb.Set(MakeKey(library, name), value); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Delete removes one entry.
func (s *Store) Delete(library, name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(MakeKey(library, name))
	})
}

// Keys returns the manifest names cached for a library.
func (s *Store) Keys(library string) ([]string, error) {
	prefix := MakeKeyPrefix(library)
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			_, name := ParseKey(it.Item().Key())
			names = append(names, name)
		}
		return nil
	})
	return names, err
}

// DeletePrefix removes every entry of a library, or all entries when
// library is empty.
func (s *Store) DeletePrefix(library string) error {
	if library == "" {
		return s.db.DropAll()
	}
	return s.db.DropPrefix(MakeKeyPrefix(library))
}

// Count returns the number of entries.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
