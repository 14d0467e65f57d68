// Package library locates Steam install roots and enumerates the library
// folders they report.
//
// Discovery probes a fixed list of native, Flatpak and Snap install roots
// plus any configured extra roots. A root that is missing or unreadable is
// skipped silently: absence of Steam under one origin is expected.
package library

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/logging"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/vdf"
)

// Candidate is a directory that may hold a Steam installation.
type Candidate struct {
	Path   string
	Origin types.Origin
}

// DefaultCandidates returns the known Linux install roots for home.
func DefaultCandidates(home string) []Candidate {
	flatpak := filepath.Join(home, ".var", "app", "com.valvesoftware.Steam")
	candidates := []Candidate{
		{filepath.Join(home, ".local", "share", "Steam"), types.OriginNative},
		{filepath.Join(home, ".steam", "steam"), types.OriginNative},
		{filepath.Join(home, ".steam", "root"), types.OriginNative},
	}
	if xdg.DataHome != "" {
		candidates = append(candidates, Candidate{filepath.Join(xdg.DataHome, "Steam"), types.OriginNative})
	}
	return append(candidates,
		Candidate{filepath.Join(flatpak, ".local", "share", "Steam"), types.OriginFlatpak},
		Candidate{filepath.Join(flatpak, "data", "Steam"), types.OriginFlatpak},
		Candidate{filepath.Join(home, "snap", "steam", "common", ".local", "share", "Steam"), types.OriginSnap},
	)
}

// Options configures discovery.
type Options struct {
	// Candidates are the install roots to probe. Empty uses DefaultCandidates
	// for the current user's home directory.
	Candidates []Candidate

	// ExtraRoots are additional install roots, probed after Candidates.
	ExtraRoots []string

	// ExtraLibraries are library paths added even if no libraryfolders.vdf
	// lists them.
	ExtraLibraries []string

	// Now overrides the clock for DiscoveredAt.
	Now func() time.Time
}

// Result is the outcome of a discovery pass.
type Result struct {
	Libraries   []types.LibraryRoot
	RootsFound  int
	Diagnostics []types.Diagnostic
}

// SteamFound reports whether at least one Steam install root exists.
func (r *Result) SteamFound() bool {
	return r.RootsFound > 0
}

// Discover probes every candidate install root and returns the de-duplicated
// set of library roots in discovery order. It never returns an error for a
// missing root; the only error is a failure to determine the home directory
// when no candidates were supplied.
func Discover(opts Options) (*Result, error) {
	logger := logging.Get("discovery")

	candidates := opts.Candidates
	if len(candidates) == 0 {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		candidates = DefaultCandidates(home)
	}
	for _, root := range opts.ExtraRoots {
		candidates = append(candidates, Candidate{Path: root, Origin: types.OriginCustom})
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	d := &discovery{
		result:    &Result{},
		seenRoots: make(map[string]bool),
		seenLibs:  make(map[string]bool),
		now:       now,
	}

	for _, c := range candidates {
		root, ok := resolveDir(c.Path)
		if !ok || d.seenRoots[root] {
			continue
		}
		d.seenRoots[root] = true

		steamapps := filepath.Join(root, "steamapps")
		if !isDir(steamapps) {
			logger.Debug("candidate has no steamapps", "path", root)
			continue
		}
		d.result.RootsFound++
		logger.Debug("steam install root found", "path", root, "origin", c.Origin)

		// The install root is itself the primary library.
		d.add(root, c.Origin, root)

		paths, err := ReadLibraryFolders(filepath.Join(steamapps, "libraryfolders.vdf"))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case errors.Is(err, vdf.ErrParse):
			// Keep whatever was parsed before the damage.
			logger.Warn("libraryfolders.vdf damaged", "root", root, "error", err)
			d.result.Diagnostics = append(d.result.Diagnostics,
				types.NewDiagnostic(types.KindParse, filepath.Join(steamapps, "libraryfolders.vdf"), err))
		case err != nil:
			logger.Warn("libraryfolders.vdf unreadable", "root", root, "error", err)
			d.result.Diagnostics = append(d.result.Diagnostics,
				types.NewDiagnostic(types.KindAccess, filepath.Join(steamapps, "libraryfolders.vdf"), types.ClassifyFSError(err)))
			continue
		}

		for _, p := range paths {
			d.add(p, c.Origin, root)
		}
	}

	for _, p := range opts.ExtraLibraries {
		d.add(p, types.OriginCustom, "")
	}

	logger.Info("discovery complete", "roots", d.result.RootsFound, "libraries", len(d.result.Libraries))
	return d.result, nil
}

type discovery struct {
	result    *Result
	seenRoots map[string]bool
	seenLibs  map[string]bool
	now       func() time.Time
}

// add records a library path unless an earlier origin already reported it.
func (d *discovery) add(path string, origin types.Origin, installRoot string) {
	logger := logging.Get("discovery")

	if !filepath.IsAbs(path) {
		if installRoot == "" {
			logger.Debug("ignoring relative library path", "path", path)
			return
		}
		path = filepath.Join(installRoot, path)
	}

	resolved, ok := resolveDir(path)
	if !ok {
		logger.Debug("library path unavailable", "path", path)
		return
	}
	if d.seenLibs[resolved] {
		return
	}
	if !isDir(filepath.Join(resolved, "steamapps")) {
		logger.Debug("library has no steamapps, skipping", "path", resolved)
		return
	}

	d.seenLibs[resolved] = true
	d.result.Libraries = append(d.result.Libraries, types.LibraryRoot{
		Path:         resolved,
		Origin:       origin,
		InstallRoot:  installRoot,
		DiscoveredAt: d.now(),
		Order:        len(d.result.Libraries),
	})
}

// ReadLibraryFolders parses a libraryfolders.vdf file and returns the
// library paths it lists in declaration order. Both the modern layout
// ("0" { "path" "..." }) and the legacy one ("1" "/path") are understood.
//
// When the file is damaged the paths parsed before the damage are returned
// together with the parse error.
func ReadLibraryFolders(path string) ([]string, error) {
	m, err := vdf.ParseFile(path)
	if m == nil {
		return nil, err
	}
	return LibraryPaths(m), err
}

// LibraryPaths extracts library paths from a parsed libraryfolders document.
func LibraryPaths(m *vdf.Map) []string {
	folders := m.Map("libraryfolders")
	if folders == nil {
		// Very old clients used "LibraryFolders".
		folders = m.Map("LibraryFolders")
	}

	var paths []string
	for _, e := range folders.Entries() {
		if !isIndexKey(e.Key) {
			continue
		}
		var p string
		if e.Value.IsMap() {
			p = e.Value.Map().String("path")
		} else {
			p = e.Value.String()
		}
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// isIndexKey reports whether a libraryfolders key is a numeric folder index
// rather than metadata such as "contentstatsid" or "TimeNextStatsReport".
func isIndexKey(key string) bool {
	_, err := types.ParseAppID(key)
	return err == nil
}

// resolveDir returns the absolute, symlink-resolved form of path when it
// names a directory.
func resolveDir(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", false
	}
	return resolved, isDir(resolved)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
