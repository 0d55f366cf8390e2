package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// TempPrefix and TempSuffix mark in-flight files. Anything carrying them
	// is never a finished artifact.
	TempPrefix = ".subservient-"
	TempSuffix = ".tmp"
)

// IsTemp reports whether name is an in-flight temp file created by this package.
func IsTemp(name string) bool {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, TempPrefix) {
		return false
	}
	return strings.HasSuffix(base, TempSuffix) || strings.Contains(base, TempSuffix+".")
}

// CreateTemp opens a new temp file next to target so that a later rename
// stays on the same filesystem.
func CreateTemp(target string) (*os.File, error) {
	return os.CreateTemp(filepath.Dir(target), TempPrefix+"*"+TempSuffix)
}

// TempPathFor reserves a temp name next to target ending in ext, for tools
// that pick their output format from the file extension. The file itself is
// not left behind; only the name is returned.
func TempPathFor(target, ext string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(target), TempPrefix+"*"+TempSuffix+ext)
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return "", err
	}
	return name, nil
}

// WriteFileAtomic writes data to a temp file in the destination directory and
// renames it over path once the content is fully on disk.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return writeAtomic(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}, os.Rename)
}

// WriteReaderNoClobber streams r into a temp file and moves it to path only
// if path does not exist yet. It returns fs.ErrExist when path is taken.
func WriteReaderNoClobber(path string, r io.Reader, perm os.FileMode) error {
	return writeAtomic(path, perm, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	}, RenameNoClobber)
}

func writeAtomic(path string, perm os.FileMode, fill func(io.Writer) error, rename func(string, string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure directory: %w", err)
	}
	tmp, err := CreateTemp(path)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := fill(tmp); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// RenameNoClobber moves oldPath to newPath and fails with an error matching
// fs.ErrExist if newPath already exists. The check and the move are a single
// kernel operation where the platform supports it.
func RenameNoClobber(oldPath, newPath string) error {
	err := renameNoReplace(oldPath, newPath)
	if err == nil || !errors.Is(err, errNoReplaceUnsupported) {
		return err
	}
	if err := os.Link(oldPath, newPath); err == nil {
		return os.Remove(oldPath)
	} else if errors.Is(err, fs.ErrExist) {
		return &os.LinkError{Op: "rename", Old: oldPath, New: newPath, Err: fs.ErrExist}
	}
	if _, err := os.Lstat(newPath); err == nil {
		return &os.LinkError{Op: "rename", Old: oldPath, New: newPath, Err: fs.ErrExist}
	}
	return os.Rename(oldPath, newPath)
}

// RemoveIfExists deletes path and treats a missing file as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// SweepStaleTemps removes temp files in dir whose modification time is older
// than maxAge. They are leftovers of a process killed mid-write.
func SweepStaleTemps(dir string, maxAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-maxAge)
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !IsTemp(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := RemoveIfExists(path); err != nil {
			return removed, err
		}
		removed = append(removed, path)
	}
	return removed, nil
}
