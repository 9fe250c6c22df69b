// Package diskutil holds the small filesystem queries the watcher needs
// when it walks a subtree.
package diskutil

import (
	"os"
	"path/filepath"
)

// IsDir reports whether path names an existing directory. Symlinks are
// not followed; a link to a directory is not a directory here.
func IsDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}

// Subdirectories returns the absolute paths of the immediate child
// directories of dir, one level only. Symlinked directories are skipped.
func Subdirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(dir, entry.Name()))
		}
	}
	return dirs, nil
}
