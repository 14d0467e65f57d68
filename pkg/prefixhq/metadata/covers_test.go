package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidImage(t *testing.T) {
	jpeg := jpegBytes()
	png := pngBytes()
	webp := webpBytes()

	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"jpeg", jpeg, true},
		{"truncated jpeg", jpeg[:len(jpeg)-1], false},
		{"png", png, true},
		{"truncated png", png[:len(png)-4], false},
		{"webp", webp, true},
		{"truncated webp", webp[:len(webp)-3], false},
		{"html error page", []byte("<html><body>rate limited</body></html>"), false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidImage(tt.data))
		})
	}
}

func TestCoverCacheSave(t *testing.T) {
	dir := t.TempDir()
	c := NewCoverCache(dir, "")

	path, err := c.Save(440, pngBytes())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "440.png"), path)
	assert.Equal(t, path, c.Cached(440))

	// A new format replaces the old file.
	path, err = c.Save(440, jpegBytes())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "440.jpg"), path)
	assert.NoFileExists(t, filepath.Join(dir, "440.png"))

	_, err = c.Save(440, jpegBytes()[:20])
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.Equal(t, path, c.Cached(440), "a rejected image leaves the old cover")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestCoverCachePartialFileIsAbsent(t *testing.T) {
	dir := t.TempDir()
	c := NewCoverCache(dir, "")

	data := jpegBytes()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "440.jpg"), data[:len(data)/2], 0o644))
	assert.Empty(t, c.Cached(440))
	assert.Empty(t, c.Find(440))
}

func TestCoverCacheOverrideWins(t *testing.T) {
	dir := t.TempDir()
	overrides := t.TempDir()
	c := NewCoverCache(dir, overrides)

	_, err := c.Save(440, jpegBytes())
	require.NoError(t, err)

	custom := filepath.Join(overrides, "440.png")
	require.NoError(t, os.WriteFile(custom, pngBytes(), 0o644))

	assert.Equal(t, custom, c.Override(440))
	assert.Equal(t, custom, c.Find(440))
	assert.Equal(t, filepath.Join(dir, "440.jpg"), c.Cached(440))

	require.NoError(t, c.Remove(440))
	assert.Equal(t, custom, c.Find(440), "remove never touches overrides")
}

func TestCoverCacheUsageAndClear(t *testing.T) {
	dir := t.TempDir()
	c := NewCoverCache(dir, "")

	_, err := c.Save(440, jpegBytes())
	require.NoError(t, err)
	_, err = c.Save(570, pngBytes())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".730-1.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644))

	count, size, err := c.Usage()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, int64(len(jpegBytes())+len(pngBytes())), size)

	removed, err := c.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(dir, ".730-1.tmp"))

	count, _, err = NewCoverCache(filepath.Join(dir, "missing"), "").Usage()
	require.NoError(t, err)
	assert.Zero(t, count)
}
