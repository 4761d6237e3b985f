//go:build !linux && !darwin && !freebsd && !windows

package inventory

import "io/fs"

func creationTime(string, fs.FileInfo) int64 { return 0 }
