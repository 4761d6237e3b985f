//go:build darwin || freebsd

package inventory

import (
	"io/fs"
	"syscall"
)

func creationTime(_ string, info fs.FileInfo) int64 {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	return int64(st.Birthtimespec.Sec)
}
