//go:build !unix

package prefix

import "io/fs"

type fileID struct{}

func hardLinkID(fs.FileInfo) (fileID, bool) {
	return fileID{}, false
}
