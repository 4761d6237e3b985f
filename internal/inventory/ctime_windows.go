//go:build windows

package inventory

import (
	"io/fs"
	"syscall"
)

func creationTime(_ string, info fs.FileInfo) int64 {
	attr, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return 0
	}
	return attr.CreationTime.Nanoseconds() / 1e9
}
