package cache

import (
	"bytes"
	"encoding/gob"
)

// Version is incremented when the encoded entry layout changes.
// Entries written by another version are treated as misses.
const Version = 1

// KeySeparator separates the library path from the manifest name in keys.
const KeySeparator = '\x00'

// Manifest is the parsed subset of an appmanifest_<id>.acf file, keyed by
// the file's mtime and size so unchanged manifests are not re-parsed.
type Manifest struct {
	Version int

	// Mtime (UnixNano) and Size of the file when it was parsed.
	Mtime int64
	Size  int64

	AppID       uint32
	Name        string
	InstallDir  string
	StateFlags  uint32
	HasFlags    bool
	LastUpdated int64
	SizeOnDisk  int64
}

// Encode serializes the entry using gob.
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes an entry produced by Encode.
func (m *Manifest) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(m)
}

// MakeKey builds the key for a manifest file within a library.
// Format: <library>\x00<file name>
func MakeKey(library, name string) []byte {
	return []byte(library + string(KeySeparator) + name)
}

// ParseKey splits a key into library path and manifest name.
func ParseKey(key []byte) (library, name string) {
	idx := bytes.IndexByte(key, KeySeparator)
	if idx == -1 {
		return string(key), ""
	}
	return string(key[:idx]), string(key[idx+1:])
}

// MakeKeyPrefix returns the prefix shared by every key of a library.
// An empty library matches every key.
func MakeKeyPrefix(library string) []byte {
	if library == "" {
		return nil
	}
	return []byte(library + string(KeySeparator))
}
