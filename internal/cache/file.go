// Package cache persists swatch embeddings between runs so that a catalog
// rebuild only embeds files whose content or provider changed.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/deep-saket/color-matching/internal/catalog"
)

// fileVersion is bumped when the on-disk layout changes. Files with another
// version are ignored.
const fileVersion = 1

type fileEntry struct {
	Provider  string    `json:"provider"`
	Digest    string    `json:"digest"`
	Embedding []float32 `json:"embedding"`
}

type fileData struct {
	Version int         `json:"version"`
	Entries []fileEntry `json:"entries"`
}

var _ catalog.EmbeddingCache = (*File)(nil)

// File is a JSON-file backed embedding cache. It is safe for concurrent use.
// Changes are kept in memory until Flush.
type File struct {
	path    string
	mu      sync.RWMutex
	entries map[catalog.CacheKey][]float32
	dirty   bool
}

// OpenFile loads the cache at path. A missing file yields an empty cache.
func OpenFile(path string) (*File, error) {
	f := &File{
		path:    path,
		entries: make(map[catalog.CacheKey][]float32),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("failed to parse cache file %s: %w", path, err)
	}
	if fd.Version != fileVersion {
		return f, nil
	}
	for _, e := range fd.Entries {
		if len(e.Embedding) == 0 {
			continue
		}
		f.entries[catalog.CacheKey{Provider: e.Provider, Digest: e.Digest}] = e.Embedding
	}
	return f, nil
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Len returns the number of cached embeddings.
func (f *File) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Get returns a copy of the cached embedding for key.
func (f *File) Get(_ context.Context, key catalog.CacheKey) ([]float32, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	emb, ok := f.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]float32(nil), emb...), true, nil
}

// Put stores a copy of embedding under key.
func (f *File) Put(_ context.Context, key catalog.CacheKey, embedding []float32) error {
	if len(embedding) == 0 {
		return errors.New("refusing to cache empty embedding")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = append([]float32(nil), embedding...)
	f.dirty = true
	return nil
}

// Flush writes the cache to disk if it changed since it was opened or last
// flushed. The file is replaced atomically.
func (f *File) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty {
		return nil
	}

	fd := fileData{Version: fileVersion, Entries: make([]fileEntry, 0, len(f.entries))}
	for k, v := range f.entries {
		fd.Entries = append(fd.Entries, fileEntry{Provider: k.Provider, Digest: k.Digest, Embedding: v})
	}
	sort.Slice(fd.Entries, func(i, j int) bool {
		if fd.Entries[i].Provider != fd.Entries[j].Provider {
			return fd.Entries[i].Provider < fd.Entries[j].Provider
		}
		return fd.Entries[i].Digest < fd.Entries[j].Digest
	})

	data, err := json.Marshal(fd)
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".swatch-cache-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	f.dirty = false
	return nil
}
