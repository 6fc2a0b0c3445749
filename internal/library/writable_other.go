//go:build !unix

package library

import (
	"errors"
	"io/fs"
	"os"
)

// Writable reports whether the current process may write path, judged from
// the permission bits.
func Writable(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	return err == nil && info.Mode().Perm()&0o200 != 0
}
