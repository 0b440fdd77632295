// Package pagination enumerates candidates from an infinitely scrolling feed.
// The engine scrolls, waits for lazy content to settle, and measures the feed's
// extent; it stops once enough candidates were seen or the extent stopped growing
// for a configured number of consecutive rounds.
package pagination

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
	"github.com/JakeFAU/creatorcrawl/internal/metrics"
)

const (
	defaultMaxCandidates     = 100
	defaultMaxStagnantRounds = 30
	defaultSettleInterval    = 3 * time.Second
)

// Config bounds one discovery pass.
type Config struct {
	MaxCandidates     int
	MaxStagnantRounds int
	SettleInterval    time.Duration
}

// Stats describes how a discovery pass ended.
type Stats struct {
	Rounds         int
	StagnantRounds int
	Discovered     int
	CapReached     bool
}

// Engine implements crawler.Discoverer.
type Engine struct {
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithSleep replaces the settle wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// New builds an Engine, filling unset limits with defaults.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = defaultMaxCandidates
	}
	if cfg.MaxStagnantRounds <= 0 {
		cfg.MaxStagnantRounds = defaultMaxStagnantRounds
	}
	if cfg.SettleInterval <= 0 {
		cfg.SettleInterval = defaultSettleInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{cfg: cfg, sleep: sleepContext, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Discover returns up to MaxCandidates unique candidates in discovery order.
func (e *Engine) Discover(ctx context.Context, feed crawler.Feed) ([]crawler.Candidate, error) {
	out, _, err := e.DiscoverWithStats(ctx, feed)
	return out, err
}

// DiscoverWithStats is Discover plus a description of how the pass ended.
func (e *Engine) DiscoverWithStats(ctx context.Context, feed crawler.Feed) ([]crawler.Candidate, Stats, error) {
	var stats Stats
	seen := make(map[crawler.Candidate]struct{})
	ordered := make([]crawler.Candidate, 0, e.cfg.MaxCandidates)

	lastExtent, err := feed.Extent(ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("measure feed extent: %w", err)
	}

	for len(ordered) < e.cfg.MaxCandidates && stats.StagnantRounds < e.cfg.MaxStagnantRounds {
		stats.Rounds++
		visible, err := feed.Candidates(ctx)
		if err != nil {
			return nil, stats, fmt.Errorf("query feed candidates: %w", err)
		}
		for _, c := range visible {
			if _, ok := seen[c]; ok || c == "" {
				continue
			}
			seen[c] = struct{}{}
			ordered = append(ordered, c)
			if len(ordered) >= e.cfg.MaxCandidates {
				break
			}
		}
		if len(ordered) >= e.cfg.MaxCandidates {
			stats.CapReached = true
			break
		}

		if err := feed.ScrollToBottom(ctx); err != nil {
			return nil, stats, fmt.Errorf("scroll feed: %w", err)
		}
		if err := e.sleep(ctx, e.cfg.SettleInterval); err != nil {
			return nil, stats, fmt.Errorf("settle feed: %w", err)
		}

		extent, err := feed.Extent(ctx)
		if err != nil {
			return nil, stats, fmt.Errorf("measure feed extent: %w", err)
		}
		if extent == lastExtent {
			stats.StagnantRounds++
		} else {
			stats.StagnantRounds = 0
			lastExtent = extent
		}
		e.logger.Debug("feed round",
			zap.Int("round", stats.Rounds),
			zap.Int("discovered", len(ordered)),
			zap.Int64("extent", extent),
			zap.Int("stagnant_rounds", stats.StagnantRounds),
		)
	}

	stats.Discovered = len(ordered)
	if stats.CapReached {
		metrics.ObserveDiscoveryStop("cap")
	} else {
		metrics.ObserveDiscoveryStop("stagnant")
	}
	return ordered, stats, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
