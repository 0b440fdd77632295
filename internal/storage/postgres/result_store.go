package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

const resultColumns = `username, search_term, provenance, bio, affiliate_shop, affiliate_platform,
	imprint, website, locale, reason, accepted_at`

// ResultStore keeps accepted entries in a table, ordered by insertion.
type ResultStore struct {
	db    DB
	table string

	mu      sync.RWMutex
	entries []crawler.Entry
}

var _ crawler.ResultStore = (*ResultStore)(nil)

// LoadResultStore reads the existing entries from table in insertion order.
func LoadResultStore(ctx context.Context, db DB, table string) (*ResultStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database is required", crawler.ErrConfig)
	}
	table, err := tableName(table, DefaultResultTable)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY seq", resultColumns, table))
	if err != nil {
		return nil, errors.Join(crawler.ErrIO, fmt.Errorf("load results: %w", err))
	}
	defer rows.Close()

	entries := []crawler.Entry{}
	for rows.Next() {
		var (
			e          crawler.Entry
			provenance string
		)
		if err := rows.Scan(
			&e.Username, &e.SearchTerm, &provenance, &e.Bio, &e.AffiliateShop, &e.AffiliatePlatform,
			&e.Imprint, &e.Website, &e.Locale, &e.Reason, &e.AcceptedAt,
		); err != nil {
			return nil, errors.Join(crawler.ErrFormat, fmt.Errorf("scan result: %w", err))
		}
		e.Provenance = crawler.ProvenanceKind(provenance)
		e.AcceptedAt = e.AcceptedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(crawler.ErrIO, fmt.Errorf("load results: %w", err))
	}
	return &ResultStore{db: db, table: table, entries: entries}, nil
}

// Len returns the number of entries.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a copy of the collection.
func (s *ResultStore) Entries() []crawler.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Append inserts entry in its own statement. On failure the entry is still
// kept in memory and ErrIO is returned.
func (s *ResultStore) Append(ctx context.Context, entry crawler.Entry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)",
		s.table, resultColumns,
	)
	_, err := s.db.Exec(ctx, query,
		entry.Username,
		entry.SearchTerm,
		string(entry.Provenance),
		entry.Bio,
		entry.AffiliateShop,
		entry.AffiliatePlatform,
		entry.Imprint,
		entry.Website,
		entry.Locale,
		entry.Reason,
		entry.AcceptedAt,
	)
	if err != nil {
		return errors.Join(crawler.ErrIO, fmt.Errorf("insert result %s: %w", entry.Username, err))
	}
	return nil
}
