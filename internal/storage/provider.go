// Package storage defines where delivered screenshots are archived.
// Implementations live in the local (filesystem) and memory subpackages.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// BlobStore persists screenshot artifacts and returns a URI for the stored
// object.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, data io.Reader) (string, error)
}

// NoOpStore discards everything. It backs the archive when no directory is
// configured.
type NoOpStore struct{}

// PutObject drains nothing and returns an empty URI.
func (NoOpStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", nil
}

// ScreenshotPath returns the archive key for a screenshot taken at t, grouped
// by day: 2025/01/06/100000-<kind>.jpg.
func ScreenshotPath(t time.Time, kind string) string {
	t = t.UTC()
	if kind == "" {
		kind = "build"
	}
	return fmt.Sprintf("%s/%s-%s.jpg", t.Format("2006/01/02"), t.Format("150405"), kind)
}
