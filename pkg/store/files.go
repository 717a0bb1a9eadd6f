package store

import (
	"fmt"
	"io"
	"os"
)

// Exists reports whether a regular file exists at path.
func Exists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}

// CopyFile copies the database file at src to dst, truncating any existing
// file. The store holding src must not be mid-transaction.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()

		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}

	if err := out.Sync(); err != nil {
		out.Close()

		return fmt.Errorf("syncing %s: %w", dst, err)
	}

	return out.Close()
}

// ReplaceFile moves src over dst, deleting src. Used to restore a database
// snapshot over the working file.
func ReplaceFile(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("replacing %s with %s: %w", dst, src, err)
	}

	return nil
}

// RemoveFile deletes path, tolerating its absence.
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}

	return nil
}
