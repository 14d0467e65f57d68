//go:build unix

package prefix

import (
	"io/fs"
	"syscall"
)

type fileID struct {
	dev uint64
	ino uint64
}

// hardLinkID identifies files with more than one link so they are counted once.
func hardLinkID(info fs.FileInfo) (fileID, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok || st.Nlink <= 1 {
		return fileID{}, false
	}
	return fileID{dev: uint64(st.Dev), ino: uint64(st.Ino)}, true
}
