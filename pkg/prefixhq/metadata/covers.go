package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// ErrInvalidImage is returned by Save for data that is not a complete
// JPEG, PNG or WebP image.
var ErrInvalidImage = errors.New("invalid or truncated image")

// coverExts are the extensions probed for cached and override covers, in
// lookup order.
var coverExts = []string{".jpg", ".jpeg", ".png", ".webp"}

var pngTrailer = []byte{'I', 'E', 'N', 'D', 0xAE, 0x42, 0x60, 0x82}

// headLen bytes are enough for format detection; tailLen holds every
// trailer the validity check inspects.
const (
	headLen = 64
	tailLen = 12
)

// CoverCache stores cover images keyed by AppID. Files are only ever
// replaced by rename, so a reader sees either the old or the new image.
type CoverCache struct {
	dir         string
	overrideDir string
}

// NewCoverCache creates a cover cache. overrideDir holds user-supplied
// covers and may be empty.
func NewCoverCache(dir, overrideDir string) *CoverCache {
	return &CoverCache{dir: dir, overrideDir: overrideDir}
}

// Dir returns the cache directory.
func (c *CoverCache) Dir() string {
	return c.dir
}

// Override returns the user-supplied cover for id, or "".
func (c *CoverCache) Override(id types.AppID) string {
	return findValid(c.overrideDir, id)
}

// Cached returns the downloaded cover for id if it is complete, or "".
func (c *CoverCache) Cached(id types.AppID) string {
	return findValid(c.dir, id)
}

// Find returns the override cover if present, otherwise the cached one.
func (c *CoverCache) Find(id types.AppID) string {
	if p := c.Override(id); p != "" {
		return p
	}
	return c.Cached(id)
}

func findValid(dir string, id types.AppID) string {
	if dir == "" {
		return ""
	}
	for _, ext := range coverExts {
		p := filepath.Join(dir, id.String()+ext)
		if ValidFile(p) {
			return p
		}
	}
	return ""
}

// Save validates data and writes it as the cover for id, replacing any
// previous cover with a different extension.
func (c *CoverCache) Save(id types.AppID, data []byte) (string, error) {
	if !ValidImage(data) {
		return "", ErrInvalidImage
	}
	ext := mimetype.Detect(data).Extension()
	if ext == "" {
		return "", ErrInvalidImage
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating cover directory: %w", err)
	}

	target := filepath.Join(c.dir, id.String()+ext)
	tmp, err := os.CreateTemp(c.dir, "."+id.String()+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp cover: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("writing cover: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("syncing cover: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing cover: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return "", fmt.Errorf("setting cover permissions: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return "", fmt.Errorf("renaming cover: %w", err)
	}

	for _, other := range coverExts {
		if other != ext {
			_ = os.Remove(filepath.Join(c.dir, id.String()+other))
		}
	}
	return target, nil
}

// Remove deletes the cached cover for id. Override covers are never touched.
func (c *CoverCache) Remove(id types.AppID) error {
	var errs []error
	for _, ext := range coverExts {
		if err := os.Remove(filepath.Join(c.dir, id.String()+ext)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Usage reports the number of cached covers and their total size.
func (c *CoverCache) Usage() (count int, size int64, err error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || !isCoverName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		count++
		size += info.Size()
	}
	return count, size, nil
}

// Clear removes every cached cover and leftover temp file.
func (c *CoverCache) Clear() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if !isCoverName(name) && filepath.Ext(name) != ".tmp" {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil {
			errs = append(errs, err)
			continue
		}
		if isCoverName(name) {
			removed++
		}
	}
	return removed, errors.Join(errs...)
}

func isCoverName(name string) bool {
	ext := filepath.Ext(name)
	for _, e := range coverExts {
		if ext == e {
			_, err := types.ParseAppID(name[:len(name)-len(ext)])
			return err == nil
		}
	}
	return false
}

// ValidImage reports whether data is a complete JPEG, PNG or WebP image.
func ValidImage(data []byte) bool {
	if len(data) < tailLen {
		return false
	}
	return validTrailer(data[:min(len(data), headLen)], data[len(data)-tailLen:], int64(len(data)))
}

// ValidFile reports whether path holds a complete image. Only the head
// and tail of the file are read.
func ValidFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() || info.Size() < tailLen {
		return false
	}

	head := make([]byte, min(info.Size(), headLen))
	if _, err := io.ReadFull(f, head); err != nil {
		return false
	}
	tail := make([]byte, tailLen)
	if _, err := f.ReadAt(tail, info.Size()-tailLen); err != nil {
		return false
	}
	return validTrailer(head, tail, info.Size())
}

func validTrailer(head, tail []byte, size int64) bool {
	mime := mimetype.Detect(head)
	switch {
	case mime.Is("image/jpeg"):
		return tail[len(tail)-2] == 0xFF && tail[len(tail)-1] == 0xD9
	case mime.Is("image/png"):
		return bytes.HasSuffix(tail, pngTrailer)
	case mime.Is("image/webp"):
		riffLen := binary.LittleEndian.Uint32(head[4:8])
		return int64(riffLen)+8 == size
	default:
		return false
	}
}
