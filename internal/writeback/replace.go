// Package writeback writes organization documents and exported libraries
// back to disk without exposing readers to a half-written file.
package writeback

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ReplaceFile atomically replaces path with content: the bytes go to a temp
// file in the same directory which is then renamed over path. An existing
// file keeps its permissions; a new one gets perm.
func ReplaceFile(path string, content []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".geocat-write-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("close temp: %w", err)
	}

	mode := perm
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	_ = os.Chmod(tmpName, mode) // best-effort permission sync

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("rename temp to %s: %w", path, err)
	}
	return nil
}

// ReplaceWith builds a new file with build, which receives a fresh path in
// the same directory as path, and renames the result over path. Nothing is
// renamed when build fails.
func ReplaceWith(path string, build func(tmpPath string) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".geocat-build-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	// build opens the path itself and may refuse an existing empty file.
	_ = os.Remove(tmpName)

	if err := build(tmpName); err != nil {
		_ = os.Remove(tmpName) // best-effort cleanup
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("rename temp to %s: %w", path, err)
	}
	return nil
}
