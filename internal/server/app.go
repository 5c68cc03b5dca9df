// Package server wires the ingestion service: database, repositories,
// queue publisher, the client HTTP API, the worker gRPC API and the outbox
// relay, all running until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/ingestkeeper/internal/logging"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/config"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/extraction"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/queue"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/reaper"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/services"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/storage"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/ingestkeeper/internal/server/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	publisher queue.Publisher
	http      *httpapi.Server
	grpc      *gs.GRPCServer
	relay     *reaper.Relay
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(c.LogBackend, c.LogLevel, os.Stdout)

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if c.MigrateOnStart {
		if err := rm.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		logger.Info(ctx, "migrations applied")
	}

	publisher, err := queue.New(ctx, c, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("queue init error: %w", err)
	}

	var presigner services.Presigner
	if c.S3Bucket != "" {
		p, err := storage.NewS3Presigner(ctx, storage.S3Settings{
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			TTL:          c.PresignTTL,
		})
		if err != nil {
			db.Close()
			publisher.Close()
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		presigner = p
	}

	validator, err := extraction.NewValidator()
	if err != nil {
		db.Close()
		publisher.Close()
		return nil, fmt.Errorf("extraction schema: %w", err)
	}

	uploads := services.NewUploadService(db, rm, presigner, logger)
	finalizer := services.NewUploadFinalizer(db, rm, publisher, logger)
	reporter := services.NewOutboxStatusReporter(db, rm, validator, logger)
	outbox := services.NewOutboxReaper(db, rm, logger)

	return &App{
		config:    c,
		logger:    logger,
		db:        db,
		publisher: publisher,
		http:      httpapi.NewHTTPServer(c.EndpointAddrHTTP, logger, httpapi.NewUploadHandler(uploads, finalizer), []byte(c.SecretKey)),
		grpc:      gs.NewGRPCServer(c.EndpointAddrGRPC, logger, reporter, c.WorkerToken),
		relay: reaper.New(outbox, publisher, logger, reaper.Settings{
			Interval:   c.ReaperInterval,
			BatchSize:  c.ReaperBatchSize,
			MinAge:     c.ReaperMinAge,
			MaxRetries: c.ReaperMaxRetries,
			Backoff:    c.ReaperBackoff,
			MaxBackoff: c.ReaperMaxBackoff,
		}),
	}, nil
}

// Run blocks until a signal arrives or one of the components fails.
func (app *App) Run(ctx context.Context) error {

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.http.Run(ctx) })
	g.Go(func() error { return app.grpc.Run(ctx) })
	g.Go(func() error { return app.relay.Run(ctx) })

	err := g.Wait()

	if cerr := app.publisher.Close(); cerr != nil {
		app.logger.Warn(context.Background(), "queue close", "error", cerr)
	}
	if cerr := app.db.Close(); cerr != nil {
		app.logger.Warn(context.Background(), "db close", "error", cerr)
	}

	app.logger.Info(context.Background(), "App stopped")
	return err
}
