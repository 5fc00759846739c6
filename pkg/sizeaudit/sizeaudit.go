// Package sizeaudit measures on-disk size of working trees. The numbers
// feed the before/after reporting that guards against accidental
// full-materialization regressions.
package sizeaudit

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// Measure returns the recursive on-disk size of path in bytes, .git
// metadata included since that is the real cost sparse-checkout controls.
// A non-existent path measures 0. Unreadable entries inside an existing
// tree are skipped rather than failing the measurement.
func Measure(path string) (int64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}

	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		total += fi.Size()
		return nil
	})
	return total, nil
}

// CountWorktreeFiles counts regular files materialized under path,
// excluding git metadata. Zero for a non-existent path.
func CountWorktreeFiles(path string) (int, error) {
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == ".git" {
			// submodule gitlink file
			return nil
		}
		count++
		return nil
	})
	return count, nil
}

// Format renders a byte count in IEC units for reports.
func Format(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
