// Package server wires Mapster's storage, services and endpoints together
// and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mapster/mapster/internal/logging"
	"github.com/mapster/mapster/internal/metrics"
	"github.com/mapster/mapster/internal/server/api"
	"github.com/mapster/mapster/internal/server/config"
	"github.com/mapster/mapster/internal/server/images"
	"github.com/mapster/mapster/internal/server/repositories/repomanager"
	"github.com/mapster/mapster/internal/server/services"

	gs "github.com/mapster/mapster/internal/server/grpc"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	api    *api.Server
	grpc   *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSON(os.Stdout, slog.LevelInfo)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	s3c, err := images.NewS3Client(ctx, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("s3 init error: %w", err)
	}
	store := images.NewS3Store(s3c, c.S3Bucket)

	svcLog := logger.With("module", "services")
	us := services.NewUserService(db, rm, c)
	deps := api.Deps{
		Accounts:    us,
		Itineraries: services.NewItineraryService(db, rm, store, us, svcLog),
		Sync:        services.NewSyncService(db, rm, store, svcLog),
		Search:      services.NewSearchService(db, rm, store, svcLog),
	}

	metrics.RegisterDefault()

	return &App{
		config: c,
		logger: logger,
		db:     db,
		api:    api.NewServer(c, deps, logger),
		grpc:   gs.NewGRPCServer(c.EndpointAddrGRPC, logger, db),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runServer runs one endpoint; its failure brings the whole app down.
func (app *App) runServer(ctx context.Context, cancelFunc context.CancelFunc, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.runServer(ctx, cancelFunc, "http", app.api.Run)
	}()
	go func() {
		defer wg.Done()
		app.runServer(ctx, cancelFunc, "grpc", app.grpc.Run)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "closing db", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
