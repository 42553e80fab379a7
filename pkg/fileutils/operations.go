package fileutils

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// CoverImageExtensions contains every extension a stored cover may carry.
var CoverImageExtensions = []string{".jpg", ".png"}

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	return errors.WithStack(os.MkdirAll(dir, 0755))
}

// CopyFile copies src to dst and flushes dst to stable storage before
// returning. A partially written dst is removed on failure.
func CopyFile(src, dst string) (err error) {
	sourceFile, err := os.Open(src)
	if err != nil {
		return errors.WithStack(err)
	}
	defer sourceFile.Close()

	destFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if cerr := destFile.Close(); cerr != nil && err == nil {
			err = errors.WithStack(cerr)
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	if _, err = io.Copy(destFile, sourceFile); err != nil {
		return errors.WithStack(err)
	}
	if err = destFile.Sync(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// WriteFile writes data to path, replacing any existing file.
func WriteFile(path string, data []byte) error {
	return errors.WithStack(os.WriteFile(path, data, 0644))
}

// Exists reports whether path names an existing file or directory.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RemoveCovers deletes every cover in dir named baseName, whatever its
// extension. Missing files are not an error.
func RemoveCovers(dir, baseName string) error {
	for _, ext := range CoverImageExtensions {
		err := os.Remove(filepath.Join(dir, baseName+ext))
		if err != nil && !os.IsNotExist(err) {
			return errors.WithStack(err)
		}
	}
	return nil
}

// RemoveAll removes path and everything below it. Missing paths are not an
// error.
func RemoveAll(path string) error {
	return errors.WithStack(os.RemoveAll(path))
}
