//go:build linux

package inventory

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// creationTime reads the birth time of the symlink target with statx.
// Filesystems that do not record it report 0.
func creationTime(path string, _ fs.FileInfo) int64 {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &stx)
	if err != nil || stx.Mask&unix.STATX_BTIME == 0 {
		return 0
	}
	return stx.Btime.Sec
}
