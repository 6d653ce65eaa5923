// Package cache persists lookup responses in a single human-readable JSON file.
package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// File is an unbounded in-memory map backed by a JSON document on disk.
// Entries are only ever added; Flush rewrites the whole file.
type File[V any] struct {
	path    string
	entries map[string]V
	dirty   bool
	lock    *flock.Flock
}

// Open loads the cache at path. A missing or empty file yields an empty
// cache; a file that does not parse is an error so earlier responses are
// never silently thrown away.
func Open[V any](path string) (*File[V], error) {
	c := &File[V]{
		path:    path,
		entries: make(map[string]V),
		lock:    flock.New(path + ".lock"),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			zap.L().Debug("cache file not found, starting empty", zap.String("path", path))
			return c, nil
		}
		return nil, eris.Wrapf(err, "cache: read %s", path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return c, nil
	}

	if err := json.Unmarshal(data, &c.entries); err != nil {
		return nil, eris.Wrapf(err, "cache: parse %s (fix or remove the file to continue)", path)
	}

	zap.L().Debug("loaded cache", zap.String("path", path), zap.Int("entries", len(c.entries)))
	return c, nil
}

// Get returns the cached value for key.
func (c *File[V]) Get(key string) (V, bool) {
	v, ok := c.entries[key]
	return v, ok
}

// Put records value under key. It is persisted on the next Flush.
func (c *File[V]) Put(key string, value V) {
	c.entries[key] = value
	c.dirty = true
}

// Len returns the number of entries.
func (c *File[V]) Len() int {
	return len(c.entries)
}

// Dirty reports whether there are entries not yet flushed.
func (c *File[V]) Dirty() bool {
	return c.dirty
}

// Path returns the backing file path.
func (c *File[V]) Path() string {
	return c.path
}

// Flush writes the full mapping to disk via a temp file and rename.
func (c *File[V]) Flush() error {
	if !c.dirty {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	// encoding/json sorts map keys, so the file diffs cleanly between runs.
	if err := enc.Encode(c.entries); err != nil {
		return eris.Wrap(err, "cache: marshal")
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "cache: create directory")
		}
	}

	if err := c.lock.Lock(); err != nil {
		return eris.Wrapf(err, "cache: lock %s", c.path)
	}
	defer c.lock.Unlock() //nolint:errcheck

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o644); err != nil {
		return eris.Wrap(err, "cache: write temp file")
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return eris.Wrap(err, "cache: rename temp file")
	}

	c.dirty = false
	return nil
}
