package safefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrSymlink is returned when a path or one of its directories is a symlink.
var ErrSymlink = errors.New("refusing symlinked path")

// EnsureDir creates dir (and parents) if missing and verifies it is a real
// directory rather than a symlink.
func EnsureDir(dir string, perm os.FileMode) (string, error) {
	abs, err := cleanAbsPath(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, perm); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := requireRealDir(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// WriteFileAtomic writes data to a temporary sibling and renames it over
// path, so readers see either the old or the new content. The parent
// directory is created when missing.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	abs, err := cleanAbsPath(path)
	if err != nil {
		return err
	}
	dir, err := EnsureDir(filepath.Dir(abs), 0o700)
	if err != nil {
		return err
	}
	if err := requireRegularOrMissing(abs); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".scancoord-tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temporary file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, abs); err != nil {
		return fmt.Errorf("replace target file: %w", err)
	}
	committed = true
	return nil
}

// ReadFile reads path, refusing symlinks. A missing file is reported with an
// error satisfying errors.Is(err, os.ErrNotExist).
func ReadFile(path string) ([]byte, error) {
	abs, err := cleanAbsPath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymlink, abs)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory: %s", abs)
	}
	return os.ReadFile(abs)
}

func cleanAbsPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	return filepath.Clean(abs), nil
}

func requireRealDir(abs string) error {
	info, err := os.Lstat(abs)
	if err != nil {
		return fmt.Errorf("stat path: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%w: %s", ErrSymlink, abs)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", abs)
	}
	return nil
}

func requireRegularOrMissing(abs string) error {
	info, err := os.Lstat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat write target: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%w: %s", ErrSymlink, abs)
	}
	if info.IsDir() {
		return fmt.Errorf("refusing directory write target: %s", abs)
	}
	return nil
}
