//go:build !unix

package fs

import "io/fs"

// OwnerName is not available on this platform.
func OwnerName(info fs.FileInfo) (string, bool) {
	return "", false
}
