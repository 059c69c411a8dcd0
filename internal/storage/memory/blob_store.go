// Package memory keeps archived screenshots in memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// BlobStore stores artifacts in-memory and returns pseudo URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// PutObject persists a copy of the content and returns a memory:// URI.
func (s *BlobStore) PutObject(_ context.Context, path, _ string, data io.Reader) (string, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), raw...)
	return "memory://" + path, nil
}

// Get returns the stored object.
func (s *BlobStore) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	return data, ok
}

// Keys lists stored paths in lexical order.
func (s *BlobStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
