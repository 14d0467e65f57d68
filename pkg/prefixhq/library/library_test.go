package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

func mkLibrary(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(path, "steamapps", "compatdata"), 0o755))
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	return resolved
}

func writeFolders(t *testing.T, root string, paths ...string) {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("\"libraryfolders\"\n{\n")
	for i, p := range paths {
		fmt.Fprintf(&sb, "\t\"%d\"\n\t{\n\t\t\"path\"\t\t\"%s\"\n\t\t\"label\"\t\t\"\"\n\t}\n", i, p)
	}
	sb.WriteString("}\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "steamapps", "libraryfolders.vdf"), []byte(sb.String()), 0o644))
}

func libraryPaths(r *Result) []string {
	out := make([]string, len(r.Libraries))
	for i, l := range r.Libraries {
		out[i] = l.Path
	}
	return out
}

func TestDiscoverModernLayout(t *testing.T) {
	base := t.TempDir()
	steam := mkLibrary(t, filepath.Join(base, "steam"))
	steam2 := mkLibrary(t, filepath.Join(base, "steam2"))
	writeFolders(t, steam, steam, steam2)

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r, err := Discover(Options{
		Candidates: []Candidate{{Path: steam, Origin: types.OriginNative}},
		Now:        func() time.Time { return fixed },
	})
	require.NoError(t, err)

	assert.True(t, r.SteamFound())
	assert.Equal(t, 1, r.RootsFound)
	assert.Equal(t, []string{steam, steam2}, libraryPaths(r))
	assert.Equal(t, 0, r.Libraries[0].Order)
	assert.Equal(t, 1, r.Libraries[1].Order)
	assert.Equal(t, types.OriginNative, r.Libraries[1].Origin)
	assert.Equal(t, steam, r.Libraries[1].InstallRoot)
	assert.Equal(t, fixed, r.Libraries[0].DiscoveredAt)
	assert.Empty(t, r.Diagnostics)
}

func TestDiscoverLegacyLayout(t *testing.T) {
	base := t.TempDir()
	steam := mkLibrary(t, filepath.Join(base, "steam"))
	ext := mkLibrary(t, filepath.Join(base, "ext"))
	legacy := fmt.Sprintf("\"LibraryFolders\"\n{\n\t\"TimeNextStatsReport\"\t\"1700000000\"\n\t\"ContentStatsID\"\t\"-1\"\n\t\"1\"\t\"%s\"\n}\n", ext)
	require.NoError(t, os.WriteFile(filepath.Join(steam, "steamapps", "libraryfolders.vdf"), []byte(legacy), 0o644))

	r, err := Discover(Options{Candidates: []Candidate{{Path: steam, Origin: types.OriginNative}}})
	require.NoError(t, err)
	assert.Equal(t, []string{steam, ext}, libraryPaths(r))
}

func TestDiscoverDeduplicatesAcrossOrigins(t *testing.T) {
	base := t.TempDir()
	native := mkLibrary(t, filepath.Join(base, "native"))
	shared := mkLibrary(t, filepath.Join(base, "shared"))
	flatpak := mkLibrary(t, filepath.Join(base, "flatpak"))
	writeFolders(t, native, native, shared)
	writeFolders(t, flatpak, flatpak, shared)

	// A symlinked alias of the native root, like ~/.steam/steam.
	alias := filepath.Join(base, "alias")
	require.NoError(t, os.Symlink(native, alias))

	r, err := Discover(Options{Candidates: []Candidate{
		{Path: native, Origin: types.OriginNative},
		{Path: alias, Origin: types.OriginNative},
		{Path: flatpak, Origin: types.OriginFlatpak},
	}})
	require.NoError(t, err)

	assert.Equal(t, 2, r.RootsFound, "the alias resolves to an already-seen root")
	assert.Equal(t, []string{native, shared, flatpak}, libraryPaths(r))
	assert.Equal(t, types.OriginNative, r.Libraries[1].Origin, "first origin owns a shared library")
	assert.Equal(t, types.OriginFlatpak, r.Libraries[2].Origin)
}

func TestDiscoverNoSteam(t *testing.T) {
	base := t.TempDir()
	r, err := Discover(Options{Candidates: []Candidate{
		{Path: filepath.Join(base, "missing"), Origin: types.OriginNative},
		{Path: filepath.Join(base, "also-missing"), Origin: types.OriginSnap},
	}})
	require.NoError(t, err)
	assert.False(t, r.SteamFound())
	assert.Empty(t, r.Libraries)
	assert.Empty(t, r.Diagnostics)
}

func TestDiscoverSkipsUnmountedLibrary(t *testing.T) {
	base := t.TempDir()
	steam := mkLibrary(t, filepath.Join(base, "steam"))
	writeFolders(t, steam, steam, filepath.Join(base, "unplugged-drive"))

	r, err := Discover(Options{Candidates: []Candidate{{Path: steam, Origin: types.OriginNative}}})
	require.NoError(t, err)
	assert.Equal(t, []string{steam}, libraryPaths(r))
}

func TestDiscoverTruncatedLibraryFolders(t *testing.T) {
	base := t.TempDir()
	steam := mkLibrary(t, filepath.Join(base, "steam"))
	steam2 := mkLibrary(t, filepath.Join(base, "steam2"))
	steam3 := mkLibrary(t, filepath.Join(base, "steam3"))

	content := fmt.Sprintf("\"libraryfolders\"\n{\n\t\"0\"\n\t{\n\t\t\"path\"\t\t\"%s\"\n\t}\n\t\"1\"\n\t{\n\t\t\"path\"\t\t\"%s\"\n\t}\n\t\"2\"\n\t{\n\t\t\"path\"\t\t\"%s", steam, steam2, steam3[:len(steam3)-2])
	require.NoError(t, os.WriteFile(filepath.Join(steam, "steamapps", "libraryfolders.vdf"), []byte(content), 0o644))

	r, err := Discover(Options{Candidates: []Candidate{{Path: steam, Origin: types.OriginNative}}})
	require.NoError(t, err)
	assert.Equal(t, []string{steam, steam2}, libraryPaths(r))
	require.Len(t, r.Diagnostics, 1)
	assert.Equal(t, types.KindParse, r.Diagnostics[0].Kind)
}

func TestDiscoverTruncatedWithoutBraces(t *testing.T) {
	base := t.TempDir()
	steam := mkLibrary(t, filepath.Join(base, "steam"))
	steam2 := mkLibrary(t, filepath.Join(base, "steam2"))

	content := fmt.Sprintf("\"libraryfolders\"\n{\n\t\"0\"\n\t{\n\t\t\"path\"\t\t\"%s\"\n\t}\n\t\"1\"\n\t{\n\t\t\"path\"\t\t\"%s\"\n", steam, steam2)
	require.NoError(t, os.WriteFile(filepath.Join(steam, "steamapps", "libraryfolders.vdf"), []byte(content), 0o644))

	r, err := Discover(Options{Candidates: []Candidate{{Path: steam, Origin: types.OriginNative}}})
	require.NoError(t, err)
	assert.Equal(t, []string{steam, steam2}, libraryPaths(r))
	assert.Empty(t, r.Diagnostics)
}

func TestDiscoverExtraRootsAndLibraries(t *testing.T) {
	base := t.TempDir()
	custom := mkLibrary(t, filepath.Join(base, "custom"))
	extra := mkLibrary(t, filepath.Join(base, "extra"))

	r, err := Discover(Options{
		Candidates:     []Candidate{{Path: filepath.Join(base, "none"), Origin: types.OriginNative}},
		ExtraRoots:     []string{custom},
		ExtraLibraries: []string{extra, "relative/ignored"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{custom, extra}, libraryPaths(r))
	assert.Equal(t, types.OriginCustom, r.Libraries[0].Origin)
	assert.Equal(t, types.OriginCustom, r.Libraries[1].Origin)
}

func TestDefaultCandidates(t *testing.T) {
	cands := DefaultCandidates("/home/u")
	origins := map[types.Origin]int{}
	for _, c := range cands {
		origins[c.Origin]++
		assert.True(t, filepath.IsAbs(c.Path) || c.Path == "")
	}
	assert.Contains(t, cands, Candidate{"/home/u/.local/share/Steam", types.OriginNative})
	assert.Contains(t, cands, Candidate{"/home/u/.var/app/com.valvesoftware.Steam/.local/share/Steam", types.OriginFlatpak})
	assert.Contains(t, cands, Candidate{"/home/u/snap/steam/common/.local/share/Steam", types.OriginSnap})
	assert.Equal(t, 2, origins[types.OriginFlatpak])
	assert.Equal(t, 1, origins[types.OriginSnap])
}
