// Package orchestrator sequences a crawl run: for every configured query it
// discovers candidates, skips the ones already checkpointed, and fetches,
// classifies and persists the rest one at a time.
//
// A candidate is checkpointed before its profile is fetched, so a crash or a
// poisoned profile never causes it to be dispatched again. Per-candidate
// failures become Failed outcomes; only store failures, configuration errors
// and cancellation end a run early.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/creatorcrawl/internal/classify"
	"github.com/JakeFAU/creatorcrawl/internal/crawler"
	"github.com/JakeFAU/creatorcrawl/internal/metrics"
	"github.com/JakeFAU/creatorcrawl/internal/telemetry"
)

// Config controls a crawl run.
type Config struct {
	Queries            []crawler.Query
	ProfileURLTemplate string
	BioSelector        string
	// Topic receives one notification per accepted entry when a publisher is set.
	Topic string
}

// Validate checks the run can start.
func (c Config) Validate() error {
	if len(c.Queries) == 0 {
		return fmt.Errorf("%w: at least one search term or category is required", crawler.ErrConfig)
	}
	for i, q := range c.Queries {
		if q.URL == "" {
			return fmt.Errorf("%w: query %d (%q) has no feed url", crawler.ErrConfig, i, q.Term)
		}
	}
	if _, err := crawler.ProfileURL(c.ProfileURLTemplate, "sample"); err != nil {
		return fmt.Errorf("%w: profile url template: %w", crawler.ErrConfig, err)
	}
	return nil
}

// Orchestrator owns the checkpoint and result stores for the duration of a run.
type Orchestrator struct {
	navigator   crawler.Navigator
	discoverer  crawler.Discoverer
	checkpoints crawler.CheckpointStore
	results     crawler.ResultStore
	classifier  *classify.Classifier
	policy      classify.Policy
	pacer       crawler.Pacer
	publisher   crawler.Publisher
	clock       crawler.Clock
	ids         crawler.IDGenerator
	cfg         Config
	logger      *zap.Logger
	tracer      trace.Tracer
	progress    *tracker
}

// New constructs an Orchestrator. pacer and publisher may be nil.
func New(
	navigator crawler.Navigator,
	discoverer crawler.Discoverer,
	checkpoints crawler.CheckpointStore,
	results crawler.ResultStore,
	classifier *classify.Classifier,
	policy classify.Policy,
	pacer crawler.Pacer,
	publisher crawler.Publisher,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if navigator == nil || discoverer == nil || checkpoints == nil || results == nil || classifier == nil {
		return nil, fmt.Errorf("%w: orchestrator is missing a collaborator", crawler.ErrConfig)
	}
	if clock == nil || ids == nil {
		return nil, fmt.Errorf("%w: orchestrator needs a clock and an id generator", crawler.ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		navigator:   navigator,
		discoverer:  discoverer,
		checkpoints: checkpoints,
		results:     results,
		classifier:  classifier,
		policy:      policy,
		pacer:       pacer,
		publisher:   publisher,
		clock:       clock,
		ids:         ids,
		cfg:         cfg,
		logger:      logger,
		tracer:      otel.Tracer(telemetry.InstrumentationName),
		progress:    newTracker(),
	}, nil
}

// Progress returns a snapshot of the current or last run.
func (o *Orchestrator) Progress() Summary {
	return o.progress.snapshot()
}

// Run processes every configured query in order and returns the run summary.
// The returned error is non-nil only for fatal conditions: a store failure,
// cancellation, or a missing run id.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	runID, err := o.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	ctx, span := o.tracer.Start(ctx, "crawl.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("queries", len(o.cfg.Queries)),
	))
	defer span.End()

	logger := o.logger.With(zap.String("run_id", runID))
	o.progress.begin(runID, len(o.cfg.Queries), o.clock.Now())
	logger.Info("crawl started",
		zap.Int("queries", len(o.cfg.Queries)),
		zap.Int("checkpointed", o.checkpoints.Len()),
	)

	for _, query := range o.cfg.Queries {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = o.runQuery(ctx, logger, query); err != nil {
			break
		}
	}

	summary := o.progress.finish(o.clock.Now(), err)
	fields := []zap.Field{
		zap.Int("discovered", summary.Discovered),
		zap.Int("skipped", summary.Skipped),
		zap.Int("accepted", summary.Accepted),
		zap.Int("rejected", summary.Rejected),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, crawler.KindOf(err))
		logger.Error("crawl aborted", append(fields, zap.Error(err), zap.String("error_kind", crawler.KindOf(err)))...)
		return summary, err
	}
	logger.Info("crawl finished", fields...)
	return summary, nil
}

func (o *Orchestrator) runQuery(ctx context.Context, logger *zap.Logger, query crawler.Query) error {
	ctx, span := o.tracer.Start(ctx, "crawl.query", trace.WithAttributes(
		attribute.String("query", query.Term),
		attribute.String("provenance", string(query.Kind)),
	))
	defer span.End()

	logger = logger.With(zap.String("query", query.Term))
	o.progress.startQuery(query.Term)

	candidates, err := o.discover(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		span.RecordError(err)
		o.progress.queryFailed()
		logger.Warn("discovery failed, skipping query",
			zap.String("url", query.URL),
			zap.Error(err),
			zap.String("error_kind", crawler.KindOf(err)),
		)
		return nil
	}
	metrics.ObserveDiscovered(string(query.Kind), len(candidates))
	o.progress.discovered(len(candidates))
	logger.Info("discovered candidates", zap.Int("count", len(candidates)))

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.checkpoints.Contains(candidate) {
			metrics.ObserveCheckpointSkip()
			o.progress.skipped()
			continue
		}
		outcome, err := o.ProcessCandidate(ctx, query, candidate)
		if err != nil {
			return err
		}
		o.observe(logger, outcome)
	}
	o.progress.queryDone()
	return nil
}

func (o *Orchestrator) discover(ctx context.Context, query crawler.Query) ([]crawler.Candidate, error) {
	feed, err := o.navigator.OpenFeed(ctx, query.URL)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	candidates, err := o.discoverer.Discover(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	return candidates, nil
}

// ProcessCandidate checkpoints candidate, then fetches, classifies and, when
// accepted, persists it. Navigation and parse failures come back as Failed
// outcomes, as are ids the checkpoint store refuses; the error is reserved for
// store failures and cancellation.
func (o *Orchestrator) ProcessCandidate(
	ctx context.Context,
	query crawler.Query,
	candidate crawler.Candidate,
) (crawler.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return crawler.Outcome{}, err
	}
	ctx, span := o.tracer.Start(ctx, "crawl.candidate", trace.WithAttributes(
		attribute.String("candidate", candidate.String()),
	))
	defer span.End()

	start := time.Now()
	if err := o.checkpoints.Record(ctx, candidate); err != nil {
		span.RecordError(err)
		if errors.Is(err, crawler.ErrInvalidCandidate) {
			return crawler.Failed(candidate, err), nil
		}
		return crawler.Outcome{}, fmt.Errorf("checkpoint %s: %w", candidate, err)
	}
	metrics.ObserveStoreWrite("checkpoint", time.Since(start))
	o.progress.dispatched()

	doc, err := o.fetch(ctx, candidate)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return crawler.Outcome{}, ctxErr
		}
		span.RecordError(err)
		return crawler.Failed(candidate, err), nil
	}

	profile, err := classify.ParseProfile(doc, o.cfg.BioSelector)
	if err != nil {
		span.RecordError(err)
		return crawler.Failed(candidate, errors.Join(crawler.ErrClassify, err)), nil
	}
	verdict := o.classifier.Classify(profile, candidate)
	decision := o.policy.Decide(verdict)
	span.SetAttributes(
		attribute.String("locale", verdict.Locale),
		attribute.Bool("accepted", decision.Accept),
	)
	if !decision.Accept {
		return crawler.Rejected(candidate, decision.Reason), nil
	}

	entry := crawler.Entry{
		Username:          candidate.String(),
		SearchTerm:        query.Term,
		Provenance:        query.Kind,
		Bio:               verdict.Bio,
		AffiliateShop:     verdict.Links.AffiliateShop,
		AffiliatePlatform: verdict.Links.AffiliatePlatform,
		Imprint:           verdict.Links.Contact,
		Website:           verdict.Links.Website,
		Locale:            verdict.Locale,
		Reason:            decision.Reason,
		AcceptedAt:        o.clock.Now().UTC(),
	}
	// The profile was already fetched and judged; an interrupt must not drop it.
	persistCtx := context.WithoutCancel(ctx)
	start = time.Now()
	if err := o.results.Append(persistCtx, entry); err != nil {
		span.RecordError(err)
		return crawler.Outcome{}, fmt.Errorf("append result %s: %w", candidate, err)
	}
	metrics.ObserveStoreWrite("results", time.Since(start))
	o.notify(persistCtx, entry)
	return crawler.Accepted(entry), nil
}

func (o *Orchestrator) fetch(ctx context.Context, candidate crawler.Candidate) (crawler.Document, error) {
	url, err := crawler.ProfileURL(o.cfg.ProfileURLTemplate, candidate)
	if err != nil {
		return crawler.Document{}, fmt.Errorf("profile url: %w", err)
	}
	if o.pacer != nil {
		if err := o.pacer.Wait(ctx, url); err != nil {
			return crawler.Document{}, err
		}
	}
	start := time.Now()
	doc, err := o.navigator.FetchProfile(ctx, url)
	metrics.ObserveProfileFetch(time.Since(start))
	if err != nil {
		return crawler.Document{}, fmt.Errorf("fetch profile %s: %w", url, err)
	}
	return doc, nil
}

func (o *Orchestrator) notify(ctx context.Context, entry crawler.Entry) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.Topic, entry); err != nil {
		o.logger.Warn("publish entry failed",
			zap.String("candidate", entry.Username),
			zap.String("topic", o.cfg.Topic),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) observe(logger *zap.Logger, outcome crawler.Outcome) {
	o.progress.outcome(outcome.Kind)
	metrics.ObserveCandidate(string(outcome.Kind), outcome.ErrorKind())

	fields := []zap.Field{zap.String("candidate", outcome.Candidate.String())}
	switch outcome.Kind {
	case crawler.OutcomeAccepted:
		logger.Info("candidate accepted", append(fields,
			zap.String("reason", outcome.Reason),
			zap.String("affiliate_shop", outcome.Entry.AffiliateShop),
			zap.String("locale", outcome.Entry.Locale),
		)...)
	case crawler.OutcomeRejected:
		logger.Debug("candidate rejected", append(fields, zap.String("reason", outcome.Reason))...)
	case crawler.OutcomeFailed:
		logger.Warn("candidate failed", append(fields,
			zap.Error(outcome.Err),
			zap.String("error_kind", outcome.ErrorKind()),
		)...)
	}
}
