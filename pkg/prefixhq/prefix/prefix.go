// Package prefix lists the Proton prefixes under each library's compatdata
// directory and optionally measures their disk usage.
package prefix

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/logging"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// Result is the outcome of scanning one library's compatdata.
type Result struct {
	Prefixes    []types.PrefixRecord
	Diagnostics []types.Diagnostic
}

// Scan lists the immediate subdirectories of lib's compatdata and returns a
// record for each one named by a numeric AppID. Other names are ignored
// without a diagnostic; Proton and tools leave non-prefix folders there.
// An unreadable compatdata yields zero prefixes and a diagnostic. The only
// error returned is ctx's.
func Scan(ctx context.Context, lib types.LibraryRoot) (*Result, error) {
	logger := logging.Get("prefix")
	res := &Result{}
	dir := lib.CompatData()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			// A library where no Proton game ever ran has no compatdata.
			logger.Debug("no compatdata", "library", lib.Path)
			return res, nil
		}
		err = types.ClassifyFSError(err)
		logger.Warn("cannot list compatdata", "path", dir, "error", err)
		res.Diagnostics = append(res.Diagnostics, types.NewDiagnostic(types.KindAccess, dir, err))
		return res, nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id, err := types.ParseAppID(entry.Name())
		if err != nil {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		// Stat follows symlinked prefix directories.
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			continue
		}
		if err == nil {
			// Stat only needs search permission on compatdata.
			err = readable(path)
		}
		if err != nil {
			err = types.ClassifyFSError(err)
			logger.Warn("skipping unreadable prefix", "path", path, "error", err)
			d := types.NewDiagnostic(types.KindAccess, path, err)
			d.AppID = id
			res.Diagnostics = append(res.Diagnostics, d)
			continue
		}

		res.Prefixes = append(res.Prefixes, types.PrefixRecord{
			AppID:        id,
			Library:      lib.Path,
			LibraryOrder: lib.Order,
			Path:         path,
			ModTime:      info.ModTime(),
			Size:         -1,
		})
	}

	logger.Debug("compatdata scanned", "library", lib.Path, "prefixes", len(res.Prefixes))
	return res, nil
}

// readable reports whether the directory at path can be listed.
func readable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
