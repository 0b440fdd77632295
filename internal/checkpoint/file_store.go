// Package checkpoint implements the durable set of dispatched candidates as an
// append-only, newline-delimited file. The set only grows: there is no remove.
package checkpoint

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

// FileStore keeps the checkpoint set in memory and mirrors every Record to disk.
// It is owned by a single writer.
type FileStore struct {
	path string
	file *os.File
	seen map[crawler.Candidate]struct{}
}

// Load reads the checkpoint file at path and opens it for appending. A missing
// file is a first run and yields an empty set.
func Load(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: checkpoint path is required", crawler.ErrConfig)
	}
	seen, err := readSet(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.Join(crawler.ErrIO, fmt.Errorf("create checkpoint dir: %w", err))
	}
	// #nosec G304 -- path comes from operator configuration.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Join(crawler.ErrIO, fmt.Errorf("open checkpoint file: %w", err))
	}
	if err := terminateTornLine(file); err != nil {
		_ = file.Close()
		return nil, errors.Join(crawler.ErrIO, err)
	}
	return &FileStore{path: path, file: file, seen: seen}, nil
}

// ReadOnly loads the checkpoint set without opening the file for writing.
func ReadOnly(path string) (map[crawler.Candidate]struct{}, error) {
	return readSet(path)
}

func readSet(path string) (map[crawler.Candidate]struct{}, error) {
	seen := make(map[crawler.Candidate]struct{})
	// #nosec G304 -- path comes from operator configuration.
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return seen, nil
		}
		return nil, errors.Join(crawler.ErrIO, fmt.Errorf("open checkpoint file: %w", err))
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		seen[crawler.Candidate(id)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Join(crawler.ErrIO, fmt.Errorf("read checkpoint file: %w", err))
	}
	return seen, nil
}

// terminateTornLine appends a newline when a crash left the last record without
// one, so the next record starts on its own line.
func terminateTornLine(file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat checkpoint file: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := file.ReadAt(last, info.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read checkpoint tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := file.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("terminate checkpoint tail: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync checkpoint file: %w", err)
	}
	return nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Contains reports whether id was ever recorded.
func (s *FileStore) Contains(id crawler.Candidate) bool {
	_, ok := s.seen[id]
	return ok
}

// Len returns the number of recorded candidates.
func (s *FileStore) Len() int {
	return len(s.seen)
}

// Record adds id to the set and appends it to disk, syncing before it returns.
// Recording an id twice is a no-op.
func (s *FileStore) Record(ctx context.Context, id crawler.Candidate) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	raw := strings.TrimSpace(id.String())
	if raw == "" || raw != id.String() || strings.ContainsAny(raw, "\r\n") {
		return fmt.Errorf("%w: %q", crawler.ErrInvalidCandidate, id)
	}
	if s.Contains(id) {
		return nil
	}
	if s.file == nil {
		return fmt.Errorf("%w: checkpoint store is closed", crawler.ErrIO)
	}
	if _, err := s.file.WriteString(raw + "\n"); err != nil {
		return errors.Join(crawler.ErrIO, fmt.Errorf("append checkpoint %s: %w", raw, err))
	}
	if err := s.file.Sync(); err != nil {
		return errors.Join(crawler.ErrIO, fmt.Errorf("sync checkpoint file: %w", err))
	}
	s.seen[id] = struct{}{}
	return nil
}

// Close releases the backing file.
func (s *FileStore) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("close checkpoint file: %w", err)
	}
	return nil
}
