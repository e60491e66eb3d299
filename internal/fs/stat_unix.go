//go:build unix

package fs

import (
	"io/fs"
	"os/user"
	"strconv"
	"syscall"
)

// OwnerName returns the login name of the user owning the file, falling back
// to the numeric uid when the user database has no entry for it.
func OwnerName(info fs.FileInfo) (string, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", false
	}
	uid := strconv.FormatUint(uint64(stat.Uid), 10)
	u, err := user.LookupId(uid)
	if err != nil {
		return uid, true
	}
	return u.Username, true
}
