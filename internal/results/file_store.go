// Package results persists accepted entries as a single JSON array that is
// rewritten whole on every append. Each rewrite lands in a temporary file that is
// synced and renamed over the previous snapshot, so readers only ever observe a
// complete document.
package results

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

// FileStore holds the result collection in memory and mirrors it to disk.
// The in-memory collection stays authoritative for the run even when a rewrite
// fails.
type FileStore struct {
	path string

	mu      sync.RWMutex
	entries []crawler.Entry
}

// LoadOrInit loads the collection at path, creating an empty array file when
// none exists.
func LoadOrInit(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: results path is required", crawler.ErrConfig)
	}
	entries, err := Read(path)
	switch {
	case err == nil:
		return &FileStore{path: path, entries: entries}, nil
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.Join(crawler.ErrIO, fmt.Errorf("create results dir: %w", err))
	}
	store := &FileStore{path: path, entries: []crawler.Entry{}}
	if err := store.flush(); err != nil {
		return nil, err
	}
	return store, nil
}

// Read decodes the collection at path. A missing file is reported as
// os.ErrNotExist.
func Read(path string) ([]crawler.Entry, error) {
	// #nosec G304 -- path comes from operator configuration.
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("read results: %w", os.ErrNotExist)
		}
		return nil, errors.Join(crawler.ErrIO, fmt.Errorf("read results: %w", err))
	}
	var entries []crawler.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Join(crawler.ErrFormat, fmt.Errorf("decode results %s: %w", path, err))
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: results %s is not a JSON array", crawler.ErrFormat, path)
	}
	return entries, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Len returns the number of entries.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a copy of the collection in insertion order.
func (s *FileStore) Entries() []crawler.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Append adds entry and rewrites the complete collection.
func (s *FileStore) Append(ctx context.Context, entry crawler.Entry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.flush()
}

// Snapshot encodes the collection exactly as it is written to disk.
func (s *FileStore) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Encode(s.entries)
}

// Encode renders entries as an indented JSON array without HTML escaping.
func Encode(entries []crawler.Entry) ([]byte, error) {
	if entries == nil {
		entries = []crawler.Entry{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return buf.Bytes(), nil
}

// flush rewrites the file; callers hold s.mu.
func (s *FileStore) flush() error {
	payload, err := Encode(s.entries)
	if err != nil {
		return errors.Join(crawler.ErrIO, err)
	}
	if err := writeAtomic(s.path, payload); err != nil {
		return errors.Join(crawler.ErrIO, err)
	}
	return nil
}

func writeAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp results: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(payload); err != nil {
		cleanup()
		return fmt.Errorf("write temp results: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp results: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp results: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace results: %w", err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	// #nosec G304 -- directory of the configured results path.
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open results dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync results dir: %w", err)
	}
	return nil
}
