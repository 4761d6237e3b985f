// Package inventory lists the regular files under a directory tree along
// with their size and creation time.
package inventory

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// FileInfo describes one regular file
type FileInfo struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	CreationTime int64  `json:"creation_time"` // epoch seconds, 0 when unknown
}

// Walker walks directory trees, skipping paths that match any exclude pattern
type Walker struct {
	exclude []string
	logger  *zap.Logger
}

// NewWalker returns a walker. Exclude patterns use doublestar syntax and
// are matched against the slash-separated path relative to the root.
func NewWalker(exclude []string, logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{exclude: exclude, logger: logger}
}

// Walk returns every regular file below root. Symlinks are followed, both
// to directories and to files, and a directory already open higher up the
// same path is not entered again. A missing root, or one that is not a
// directory, yields an empty, non-nil slice. Entries that cannot be read
// are skipped.
func (w *Walker) Walk(root string) []FileInfo {
	files := []FileInfo{}

	info, err := os.Stat(root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("Inventory root not accessible", zap.String("root", root), zap.Error(err))
		}
		return files
	}
	if !info.IsDir() {
		w.logger.Debug("Inventory root is not a directory", zap.String("root", root))
		return files
	}

	w.walkDir(root, root, map[string]bool{}, &files)
	return files
}

// walkDir lists dir into files. open holds the resolved paths of dir's
// ancestors so that symlink loops terminate.
func (w *Walker) walkDir(root, dir string, open map[string]bool, files *[]FileInfo) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		w.logger.Debug("Skipping unresolvable directory", zap.String("path", dir), zap.Error(err))
		return
	}
	if open[resolved] {
		w.logger.Debug("Skipping symlink loop", zap.String("path", dir), zap.String("target", resolved))
		return
	}
	open[resolved] = true
	defer delete(open, resolved)

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Debug("Skipping unreadable directory", zap.String("path", dir), zap.Error(err))
		return
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if w.excluded(root, path) {
			continue
		}

		// Stat follows symlinks; dangling links fail here and are skipped
		info, err := os.Stat(path)
		if err != nil {
			w.logger.Debug("Skipping unreadable entry", zap.String("path", path), zap.Error(err))
			continue
		}

		switch {
		case info.IsDir():
			w.walkDir(root, path, open, files)
		case info.Mode().IsRegular():
			*files = append(*files, FileInfo{
				Path:         path,
				Size:         info.Size(),
				CreationTime: creationTime(path, info),
			})
		}
	}
}

func (w *Walker) excluded(root, path string) bool {
	if len(w.exclude) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range w.exclude {
		ok, err := doublestar.Match(p, rel)
		if err != nil {
			w.logger.Debug("Bad exclude pattern", zap.String("pattern", p), zap.Error(err))
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// Walk lists root without exclusions
func Walk(root string) []FileInfo {
	return NewWalker(nil, nil).Walk(root)
}
