package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

// CheckpointStore keeps the checkpoint set in a table and mirrors it in memory.
type CheckpointStore struct {
	db    DB
	table string
	seen  map[crawler.Candidate]struct{}
}

var _ crawler.CheckpointStore = (*CheckpointStore)(nil)

// LoadCheckpointStore reads every recorded candidate from table.
func LoadCheckpointStore(ctx context.Context, db DB, table string) (*CheckpointStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database is required", crawler.ErrConfig)
	}
	table, err := tableName(table, DefaultCheckpointTable)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, fmt.Sprintf("SELECT candidate FROM %s", table))
	if err != nil {
		return nil, errors.Join(crawler.ErrIO, fmt.Errorf("load checkpoints: %w", err))
	}
	defer rows.Close()

	seen := make(map[crawler.Candidate]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Join(crawler.ErrFormat, fmt.Errorf("scan checkpoint: %w", err))
		}
		if id = strings.TrimSpace(id); id != "" {
			seen[crawler.Candidate(id)] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(crawler.ErrIO, fmt.Errorf("load checkpoints: %w", err))
	}
	return &CheckpointStore{db: db, table: table, seen: seen}, nil
}

// Contains reports whether id was ever recorded.
func (s *CheckpointStore) Contains(id crawler.Candidate) bool {
	_, ok := s.seen[id]
	return ok
}

// Len returns the number of recorded candidates.
func (s *CheckpointStore) Len() int {
	return len(s.seen)
}

// Record inserts id. The insert commits before Record returns; a row that
// already exists is left untouched.
func (s *CheckpointStore) Record(ctx context.Context, id crawler.Candidate) error {
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
	query := fmt.Sprintf("INSERT INTO %s (candidate) VALUES ($1) ON CONFLICT (candidate) DO NOTHING", s.table)
	if _, err := s.db.Exec(ctx, query, id.String()); err != nil {
		return errors.Join(crawler.ErrIO, fmt.Errorf("insert checkpoint %s: %w", id, err))
	}
	s.seen[id] = struct{}{}
	return nil
}
