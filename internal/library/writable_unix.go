//go:build unix

package library

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Writable reports whether the current process may write path. A path that
// does not exist yet is writable when its directory is.
func Writable(path string) bool {
	if path == "" {
		return false
	}
	err := unix.Access(path, unix.W_OK)
	if err == nil {
		return true
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		return unix.Access(filepath.Dir(path), unix.W_OK) == nil
	}
	return false
}
