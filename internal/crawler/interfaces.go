package crawler

import (
	"context"
	"io"
	"time"
)

// CheckpointStore is the durable set of candidates ever dispatched.
type CheckpointStore interface {
	Contains(id Candidate) bool
	// Record must be durable before it returns.
	Record(ctx context.Context, id Candidate) error
	Len() int
}

// ResultStore is the durable, ordered collection of accepted entries.
type ResultStore interface {
	// Append must leave the backing store holding a complete snapshot.
	Append(ctx context.Context, entry Entry) error
	Entries() []Entry
}

// Feed is the scroll driver for one rendered, infinitely scrolling list.
type Feed interface {
	// Candidates returns the identifiers currently rendered in the feed.
	Candidates(ctx context.Context) ([]Candidate, error)
	ScrollToBottom(ctx context.Context) error
	// Extent reports the current scrollable height of the feed.
	Extent(ctx context.Context) (int64, error)
}

// Navigator opens feeds and fetches rendered profile documents.
type Navigator interface {
	OpenFeed(ctx context.Context, url string) (Feed, error)
	FetchProfile(ctx context.Context, url string) (Document, error)
}

// Discoverer enumerates candidates from a feed.
type Discoverer interface {
	Discover(ctx context.Context, feed Feed) ([]Candidate, error)
}

// LocaleDetector guesses the locale code of non-empty text.
type LocaleDetector interface {
	Detect(text string) (string, error)
}

// Pacer delays profile visits.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Publisher pushes accepted-entry notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes exported artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
