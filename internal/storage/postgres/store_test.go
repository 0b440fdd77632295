package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestEnsureSchemaCreatesBothTables(t *testing.T) {
	t.Parallel()
	mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS creator_checkpoints").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS creator_results").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, EnsureSchema(context.Background(), mock, "", ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaRejectsBadTableName(t *testing.T) {
	t.Parallel()
	err := EnsureSchema(context.Background(), newMock(t), "checkpoints; DROP TABLE x", "")
	require.ErrorIs(t, err, crawler.ErrConfig)
}

func TestEnsureSchemaFailureIsIO(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cp").WillReturnError(errors.New("permission denied"))

	err := EnsureSchema(context.Background(), mock, "cp", "res")
	require.ErrorIs(t, err, crawler.ErrIO)
}

func TestCheckpointStoreLoadAndRecord(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT candidate FROM creator_checkpoints").
		WillReturnRows(mock.NewRows([]string{"candidate"}).AddRow("alpha").AddRow(" beta "))
	store, err := LoadCheckpointStore(ctx, mock, "")
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
	assert.True(t, store.Contains("beta"))

	mock.ExpectExec("INSERT INTO creator_checkpoints").
		WithArgs("gamma").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.Record(ctx, "gamma"))
	// Already recorded: no statement is issued.
	require.NoError(t, store.Record(ctx, "alpha"))
	assert.True(t, store.Contains("gamma"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckpointStoreRejectsInvalidIDs(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT candidate FROM cp").WillReturnRows(mock.NewRows([]string{"candidate"}))
	store, err := LoadCheckpointStore(ctx, mock, "cp")
	require.NoError(t, err)

	for _, id := range []crawler.Candidate{"", " padded ", "two\nlines"} {
		require.ErrorIs(t, store.Record(ctx, id), crawler.ErrInvalidCandidate, "id %q", id)
	}
	assert.Equal(t, 0, store.Len())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckpointStoreRecordFailure(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT candidate FROM cp").WillReturnRows(mock.NewRows([]string{"candidate"}))
	store, err := LoadCheckpointStore(ctx, mock, "cp")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO cp").WithArgs("alpha").WillReturnError(errors.New("connection reset"))
	err = store.Record(ctx, "alpha")
	require.ErrorIs(t, err, crawler.ErrIO)
	assert.False(t, store.Contains("alpha"), "failed insert must not mark the candidate seen")
}

func TestCheckpointStoreLoadFailure(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	mock.ExpectQuery("SELECT candidate FROM creator_checkpoints").WillReturnError(errors.New("no such table"))

	_, err := LoadCheckpointStore(context.Background(), mock, "")
	require.ErrorIs(t, err, crawler.ErrIO)
}

func TestResultStoreLoadAndAppend(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	ctx := context.Background()
	acceptedAt := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	columns := []string{
		"username", "search_term", "provenance", "bio", "affiliate_shop", "affiliate_platform",
		"imprint", "website", "locale", "reason", "accepted_at",
	}
	mock.ExpectQuery("FROM creator_results ORDER BY seq").
		WillReturnRows(mock.NewRows(columns).AddRow(
			"alpha", "merch", "search", "Hallo", "https://shop.spreadshop.com/a", "spreadshop",
			"", "", "de", "locale", acceptedAt,
		))
	store, err := LoadResultStore(ctx, mock, "")
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())
	first := store.Entries()[0]
	assert.Equal(t, "alpha", first.Username)
	assert.Equal(t, crawler.ProvenanceSearch, first.Provenance)
	assert.Equal(t, acceptedAt, first.AcceptedAt)

	entry := crawler.Entry{
		Username:   "beta",
		SearchTerm: "Mode",
		Provenance: crawler.ProvenanceCategory,
		Imprint:    "https://beta.de/impressum",
		Locale:     "und",
		Reason:     "contact-link",
		AcceptedAt: acceptedAt,
	}
	mock.ExpectExec("INSERT INTO creator_results").
		WithArgs("beta", "Mode", "category", "", "", "", "https://beta.de/impressum", "", "und", "contact-link", acceptedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.Append(ctx, entry))

	entries := store.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "beta", entries[1].Username)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultStoreAppendFailureKeepsEntryInMemory(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery("FROM creator_results").WillReturnRows(mock.NewRows([]string{"username"}))
	store, err := LoadResultStore(ctx, mock, "")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO creator_results").WillReturnError(errors.New("disk full"))
	err = store.Append(ctx, crawler.Entry{Username: "alpha"})
	require.ErrorIs(t, err, crawler.ErrIO)
	assert.Equal(t, 1, store.Len())
}

func TestConnectRequiresDSN(t *testing.T) {
	t.Parallel()
	_, err := Connect(context.Background(), Config{})
	require.ErrorIs(t, err, crawler.ErrConfig)

	_, err = Connect(context.Background(), Config{DSN: "::not a dsn::"})
	require.ErrorIs(t, err, crawler.ErrConfig)
}

func TestResultStoreEntriesSafeDuringAppend(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery("FROM creator_results").WillReturnRows(mock.NewRows([]string{"username"}))
	store, err := LoadResultStore(ctx, mock, "")
	require.NoError(t, err)

	const n = 10
	for range n {
		mock.ExpectExec("INSERT INTO creator_results").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	done := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-done:
				return
			default:
				_ = store.Entries()
				_ = store.Len()
			}
		}
	}()

	for i := range n {
		require.NoError(t, store.Append(ctx, crawler.Entry{Username: string(rune('a' + i))}))
	}
	close(done)
	<-readerDone

	assert.Equal(t, n, store.Len())
	require.NoError(t, mock.ExpectationsWereMet())
}
