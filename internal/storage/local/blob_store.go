// Package local archives screenshots on the local filesystem.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem archive.
type Config struct {
	// BaseDir is the root directory where screenshots are written.
	BaseDir string `mapstructure:"dir" yaml:"dir"`
}

// BlobStore writes screenshots under BaseDir.
type BlobStore struct {
	baseDir string
}

// New creates the archive, creating BaseDir if needed and checking that it
// is writable.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &BlobStore{baseDir: cfg.BaseDir}, nil
}

// PutObject writes data below the base directory and returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, path, _ string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}

	fullPath := filepath.Clean(filepath.Join(s.baseDir, path))
	if !strings.HasPrefix(fullPath, filepath.Clean(s.baseDir)+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}

	raw, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}
	if err := os.WriteFile(fullPath, raw, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return "file://" + fullPath, nil
}
