// Package system provides the wall clock used to stamp accepted entries.
package system

import "time"

// Clock implements crawler.Clock. Timestamps are UTC, truncated to Precision
// when it is positive.
type Clock struct {
	Precision time.Duration
}

// New creates a Clock with second precision.
func New() *Clock {
	return &Clock{Precision: time.Second}
}

// Now returns the current time.
func (c Clock) Now() time.Time {
	now := time.Now().UTC()
	if c.Precision > 0 {
		now = now.Truncate(c.Precision)
	}
	return now
}
