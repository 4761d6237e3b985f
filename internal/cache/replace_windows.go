//go:build windows

package cache

import (
	"golang.org/x/sys/windows"
)

// replaceFile renames src over dst with MoveFileEx so an existing
// destination is replaced in a single call
func replaceFile(src, dst string) error {
	from, err := windows.UTF16PtrFromString(src)
	if err != nil {
		return err
	}
	to, err := windows.UTF16PtrFromString(dst)
	if err != nil {
		return err
	}
	return windows.MoveFileEx(from, to, windows.MOVEFILE_REPLACE_EXISTING|windows.MOVEFILE_WRITE_THROUGH)
}
