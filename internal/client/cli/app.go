// Package cli runs the interactive sync client: it signs the user in and
// keeps the local replica current.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mapster/mapster/internal/client/client"
	"github.com/mapster/mapster/internal/client/config"
	"github.com/mapster/mapster/internal/client/models"
	"github.com/mapster/mapster/internal/client/services"
	"github.com/mapster/mapster/internal/logging"
)

// Syncer is implemented by services.SyncService.
type Syncer interface {
	Login(ctx context.Context, username, password string) error
	Run(ctx context.Context, interval time.Duration) error
	Itineraries(ctx context.Context) ([]*models.Itinerary, error)
}

type App struct {
	config *config.Config
	syncer Syncer
	db     *sql.DB
	reader *bufio.Reader
	out    io.Writer
	logger logging.Logger
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewText(os.Stderr, slog.LevelInfo)

	db, err := client.InitDatabase(ctx, c.LocalDB)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	s := services.NewSyncService(client.NewHTTPClient(c.ServerURL), db, logger)
	return &App{
		config: c,
		syncer: s,
		db:     db,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		logger: logger,
	}, nil
}

// Run signs in, syncs until interrupted (or once for a zero interval) and
// prints the replica contents.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	if app.db != nil {
		defer app.db.Close()
	}

	username := app.config.Username
	if username == "" {
		var err error
		if username, err = GetSimpleText(app.reader, "Username", app.out); err != nil {
			return err
		}
	}
	password, err := GetPassword(app.out)
	if err != nil {
		return err
	}

	if err := app.syncer.Login(ctx, username, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	app.logger.Info(ctx, "signed in", "user", username, "server", app.config.ServerURL)

	if err := app.syncer.Run(ctx, app.config.SyncInterval); err != nil {
		return err
	}

	// ctx may be cancelled by now; listing is local and quick.
	return app.printReplica(context.WithoutCancel(ctx))
}

func (app *App) printReplica(ctx context.Context) error {
	its, err := app.syncer.Itineraries(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "%d itineraries in local replica\n", len(its))
	for _, it := range its {
		fmt.Fprintf(app.out, "  %s  %s (%d waypoints, modified %s)\n", it.ID, it.Name, len(it.Waypoints), it.LastModified)
	}
	return nil
}
