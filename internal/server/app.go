// Package server builds the crawl application from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/creatorcrawl/internal/api"
	"github.com/JakeFAU/creatorcrawl/internal/browser"
	"github.com/JakeFAU/creatorcrawl/internal/checkpoint"
	"github.com/JakeFAU/creatorcrawl/internal/classify"
	"github.com/JakeFAU/creatorcrawl/internal/clock/system"
	"github.com/JakeFAU/creatorcrawl/internal/config"
	"github.com/JakeFAU/creatorcrawl/internal/crawler"
	"github.com/JakeFAU/creatorcrawl/internal/id/uuid"
	"github.com/JakeFAU/creatorcrawl/internal/locale"
	"github.com/JakeFAU/creatorcrawl/internal/orchestrator"
	"github.com/JakeFAU/creatorcrawl/internal/pagination"
	"github.com/JakeFAU/creatorcrawl/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/creatorcrawl/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/creatorcrawl/internal/publisher/pubsub"
	"github.com/JakeFAU/creatorcrawl/internal/results"
	gcsstorage "github.com/JakeFAU/creatorcrawl/internal/storage/gcs"
	localstorage "github.com/JakeFAU/creatorcrawl/internal/storage/local"
	memorystorage "github.com/JakeFAU/creatorcrawl/internal/storage/memory"
	pgstore "github.com/JakeFAU/creatorcrawl/internal/storage/postgres"
	"github.com/JakeFAU/creatorcrawl/internal/telemetry"
)

const (
	shutdownTimeout = 10 * time.Second
	exportTimeout   = time.Minute
	dryRunTopic     = "dry-run"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	orch        *orchestrator.Orchestrator
	apiServer   *api.Server
	checkpoints crawler.CheckpointStore
	results     crawler.ResultStore
	exporter    crawler.BlobStore

	dryPublisher *memorypublisher.Publisher
	dryBlobs     *memorystorage.BlobStore

	session        *browser.Session
	checkpointFile *checkpoint.FileStore
	pool           *pgxpool.Pool
	gcsClient      *storage.Client
	publisherClose func() error
	tracerShutdown func(context.Context) error
}

// Build creates the application's dependencies. Nothing touches the browser
// until Run.
func Build(ctx context.Context, cfg config.Config, version string, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	if err := app.build(ctx, version); err != nil {
		app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context, version string) error {
	if a.cfg.Telemetry.Tracing {
		tp, err := telemetry.InitTracerProvider(ctx, a.cfg.Telemetry.ServiceName, version)
		if err != nil {
			return fmt.Errorf("tracer init failed: %w", err)
		}
		a.tracerShutdown = tp.Shutdown
		a.logger.Info("tracing enabled", zap.String("service", a.cfg.Telemetry.ServiceName))
	}

	if err := a.setupStores(ctx); err != nil {
		return err
	}
	if err := a.setupExporter(ctx); err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}

	queries, err := a.cfg.Queries()
	if err != nil {
		return err
	}

	a.session, err = browser.NewSession(browser.Config{
		Headless:          a.cfg.Browser.Headless,
		UserAgent:         a.cfg.Browser.UserAgent,
		NavigationTimeout: a.cfg.Crawl.NavigationTimeout,
		FeedSettle:        a.cfg.Crawl.FeedSettle,
		ProfileSettle:     a.cfg.Crawl.ProfileSettle,
		CardSelector:      a.cfg.Crawl.CardSelector,
		HandleMarker:      a.cfg.Crawl.HandleMarker,
		StorageStatePath:  a.cfg.Browser.StorageStatePath,
	}, a.logger.Named("browser"))
	if err != nil {
		return fmt.Errorf("browser session init failed: %w", err)
	}

	classifier, err := classify.New(
		a.cfg.Rules(),
		locale.New(a.cfg.Classify.MinConfidence),
		a.logger.Named("classify"),
	)
	if err != nil {
		return err
	}

	engine := pagination.New(pagination.Config{
		MaxCandidates:     a.cfg.Crawl.MaxCandidatesPerQuery,
		MaxStagnantRounds: a.cfg.Crawl.MaxStagnantRounds,
		SettleInterval:    a.cfg.Crawl.SettleInterval,
	}, a.logger.Named("pagination"))

	topic := a.cfg.PubSub.Topic
	if a.cfg.DryRun && topic == "" {
		topic = dryRunTopic
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Crawl.ProfileQPS,
		DefaultBurst: 1,
	})

	a.orch, err = orchestrator.New(
		a.session,
		engine,
		a.checkpoints,
		a.results,
		classifier,
		a.cfg.Policy(),
		limiter,
		publisher,
		system.New(),
		uuid.New(),
		orchestrator.Config{
			Queries:            queries,
			ProfileURLTemplate: a.cfg.Crawl.ProfileURLTemplate,
			BioSelector:        a.cfg.Crawl.BioSelector,
			Topic:              topic,
		},
		a.logger.Named("orchestrator"),
	)
	if err != nil {
		return err
	}

	a.apiServer = api.NewServer(a.orch, a.results, a.logger.Named("api"))
	a.logger.Info("application built",
		zap.Int("queries", len(queries)),
		zap.String("storage_backend", a.cfg.Storage.Backend),
		zap.Int("checkpointed", a.checkpoints.Len()),
		zap.Int("results", len(a.results.Entries())),
	)
	return nil
}

func (a *App) setupStores(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.BackendPostgres:
		pg := a.cfg.Storage.Postgres
		pool, err := pgstore.Connect(ctx, pgstore.Config{
			DSN:             pg.DSN,
			CheckpointTable: pg.CheckpointTable,
			ResultTable:     pg.ResultTable,
			MaxConns:        pg.MaxConns,
		})
		if err != nil {
			return err
		}
		a.pool = pool
		if err := pgstore.EnsureSchema(ctx, pool, pg.CheckpointTable, pg.ResultTable); err != nil {
			return err
		}
		cps, err := pgstore.LoadCheckpointStore(ctx, pool, pg.CheckpointTable)
		if err != nil {
			return err
		}
		res, err := pgstore.LoadResultStore(ctx, pool, pg.ResultTable)
		if err != nil {
			return err
		}
		a.checkpoints, a.results = cps, res
		a.logger.Info("using postgres storage backend",
			zap.String("checkpoint_table", pg.CheckpointTable),
			zap.String("result_table", pg.ResultTable),
		)
	default:
		cps, err := checkpoint.Load(a.cfg.Storage.CheckpointPath)
		if err != nil {
			return err
		}
		a.checkpointFile = cps
		res, err := results.LoadOrInit(a.cfg.Storage.ResultsPath)
		if err != nil {
			return err
		}
		a.checkpoints, a.results = cps, res
		a.logger.Info("using file storage backend",
			zap.String("checkpoint_path", a.cfg.Storage.CheckpointPath),
			zap.String("results_path", a.cfg.Storage.ResultsPath),
		)
	}
	return nil
}

func (a *App) setupExporter(ctx context.Context) error {
	exp := a.cfg.Export
	switch {
	case a.cfg.DryRun && exp.Enabled():
		a.dryBlobs = memorystorage.NewBlobStore()
		a.exporter = a.dryBlobs
		a.logger.Info("dry run: results export kept in memory")
	case exp.GCSBucket != "":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: exp.GCSBucket, Prefix: exp.Prefix})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.exporter = blobs
		a.logger.Info("exporting results to GCS", zap.String("bucket", exp.GCSBucket))
	case exp.LocalDir != "":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: exp.LocalDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.exporter = blobs
		a.logger.Info("exporting results locally", zap.String("dir", exp.LocalDir))
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.DryRun {
		a.dryPublisher = memorypublisher.New()
		a.logger.Info("dry run: notifications kept in memory")
		return a.dryPublisher, nil
	}
	if !a.cfg.PubSub.Enabled() {
		a.logger.Debug("no Pub/Sub topic configured, notifications disabled")
		return nil, nil
	}
	publisher, closeFn, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisherClose = closeFn
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return publisher, nil
}

// Handler exposes the status server routes.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run crawls every configured query, serving status on server.addr while it
// runs, then exports the result collection when an export target is set.
func (a *App) Run(ctx context.Context) (orchestrator.Summary, error) {
	var srv *http.Server
	if a.cfg.Server.Addr != "" {
		srv = &http.Server{
			Addr:              a.cfg.Server.Addr,
			Handler:           a.apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("status server started", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("status server error", zap.Error(err))
			}
		}()
	}

	summary, runErr := a.orch.Run(ctx)

	if a.exporter != nil {
		if _, err := a.Export(context.WithoutCancel(ctx)); err != nil {
			a.logger.Error("result export failed", zap.Error(err))
		}
	}

	a.reportDryRun()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("status server shutdown error", zap.Error(err))
		}
	}
	return summary, runErr
}

func (a *App) reportDryRun() {
	if a.dryPublisher != nil {
		for _, msg := range a.dryPublisher.Messages() {
			a.logger.Debug("dry run notification", zap.String("topic", msg.Topic), zap.Any("payload", msg.Payload))
		}
		a.logger.Info("dry run notifications", zap.Int("count", len(a.dryPublisher.Messages())))
	}
	if a.dryBlobs != nil {
		obj, ok := a.dryBlobs.Get(a.cfg.Export.Object)
		a.logger.Info("dry run export",
			zap.Bool("written", ok),
			zap.Int("bytes", len(obj.Data)),
			zap.String("content_type", obj.ContentType),
		)
	}
}

// Export writes the current result collection to the export target.
func (a *App) Export(ctx context.Context) (string, error) {
	if a.exporter == nil {
		return "", fmt.Errorf("%w: no export target configured", crawler.ErrConfig)
	}
	ctx, cancel := context.WithTimeout(ctx, exportTimeout)
	defer cancel()
	uri, err := results.Export(ctx, a.exporter, a.cfg.Export.Object, a.results.Entries())
	if err != nil {
		return "", err
	}
	a.logger.Info("results exported", zap.String("uri", uri), zap.Int("entries", len(a.results.Entries())))
	return uri, nil
}

// Close releases every resource Build acquired. It is safe on a partly built App.
func (a *App) Close(ctx context.Context) {
	if a.session != nil {
		a.session.Close()
	}
	if a.publisherClose != nil {
		if err := a.publisherClose(); err != nil {
			a.logger.Warn("pubsub close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.checkpointFile != nil {
		if err := a.checkpointFile.Close(); err != nil {
			a.logger.Warn("checkpoint close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}
