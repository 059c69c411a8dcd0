package monitor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ReadCache returns the last announced timestamp, or "" when none is stored.
func ReadCache(path string) (string, error) {
	// #nosec G304 -- path comes from the admin-controlled cache_file setting.
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cache %s: %w", path, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// WriteCache records ts as the last announced timestamp. The file is written
// to a temp sibling and renamed so a crash never leaves it truncated.
func WriteCache(path, ts string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return fmt.Errorf("write cache %s: %w", path, err)
	}
	if _, err := tmp.WriteString(ts); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache %s: %w", path, err)
	}
	return nil
}

// CacheExists reports whether a cache file is present.
func CacheExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat cache %s: %w", path, err)
	}
}
