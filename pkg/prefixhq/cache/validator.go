package cache

import (
	"errors"
	"io/fs"
)

// ErrStale is returned when a cached entry no longer matches its file.
var ErrStale = errors.New("cache entry stale")

// Validator checks cached entries against the current file metadata.
type Validator struct {
	store *Store
}

// NewValidator creates a validator over store.
func NewValidator(store *Store) *Validator {
	return &Validator{store: store}
}

// Validate returns the entry for name in library if it was written by this
// cache version for a file with the same mtime and size as info. Stale
// entries are deleted.
func (v *Validator) Validate(library, name string, info fs.FileInfo) (*Manifest, error) {
	entry, err := v.store.Get(library, name)
	if err != nil {
		return nil, err
	}

	if entry.Version != Version ||
		entry.Mtime != info.ModTime().UnixNano() ||
		entry.Size != info.Size() {
		_ = v.store.Delete(library, name)
		return nil, ErrStale
	}
	return entry, nil
}
