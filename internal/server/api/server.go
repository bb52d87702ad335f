// Package api exposes Mapster over a JSON HTTP interface.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mapster/mapster/internal/logging"
	"github.com/mapster/mapster/internal/metrics"
	"github.com/mapster/mapster/internal/server/config"
	"github.com/mapster/mapster/internal/server/models"
	"github.com/mapster/mapster/internal/server/services"
)

// Accounts is the user-facing part of the user service.
type Accounts interface {
	Register(ctx context.Context, username, password, name string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*services.TokenPair, error)
	LoginExternal(ctx context.Context, providerUserID, name string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

// Itineraries manages a single user's itineraries.
type Itineraries interface {
	Create(ctx context.Context, ownerID string, in models.ItineraryInput) (*models.Itinerary, error)
	Update(ctx context.Context, id, ownerID string, in models.ItineraryInput) (*models.Itinerary, error)
	SoftDelete(ctx context.Context, id, ownerID string) error
	View(ctx context.Context, id, viewerID string) (*models.DetailView, error)
	ToggleLike(ctx context.Context, id, userID string) (*models.LikeResult, error)
	GetOwned(ctx context.Context, id, ownerID string) (*models.Itinerary, error)
	ListMine(ctx context.Context, ownerID string) ([]*models.Itinerary, error)
}

// Syncer returns a user's changes since a watermark.
type Syncer interface {
	Pull(ctx context.Context, userID, watermark string) ([]models.Record, error)
}

// Searcher lists public itineraries.
type Searcher interface {
	List(ctx context.Context, mode models.SortMode) ([]*models.Itinerary, error)
	Search(ctx context.Context, query, filters string) ([]*models.Itinerary, error)
}

// Deps are the services the HTTP layer drives.
type Deps struct {
	Accounts    Accounts
	Itineraries Itineraries
	Sync        Syncer
	Search      Searcher
}

type Server struct {
	address        string
	deps           Deps
	logger         logging.Logger
	jwtSecret      []byte
	identitySecret string
	maxImageBytes  int64
	cacheEnabled   bool
	authLimiter    *limiter
	now            func() time.Time
}

func NewServer(cfg *config.Config, deps Deps, l logging.Logger) *Server {
	s := &Server{
		address:        cfg.EndpointAddrHTTP,
		deps:           deps,
		logger:         l.With("module", "api"),
		jwtSecret:      []byte(cfg.SecretKey),
		identitySecret: cfg.IdentitySecret,
		maxImageBytes:  cfg.MaxImageBytes,
		cacheEnabled:   cfg.CacheEnabled,
		now:            time.Now,
	}
	if cfg.AuthRateLimit > 0 {
		s.authLimiter = newLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst)
	}
	return s
}

// Handler builds the routed and instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.rateLimited(s.handleRegister))
	mux.HandleFunc("POST /api/auth/login", s.rateLimited(s.handleLogin))
	mux.HandleFunc("POST /api/auth/refresh", s.rateLimited(s.handleRefresh))
	mux.HandleFunc("POST /api/auth/external", s.rateLimited(s.handleExternalLogin))
	mux.HandleFunc("GET /check-login-status", s.optionalAuth(s.handleLoginStatus))

	mux.HandleFunc("GET /api/itineraries", s.handleList)
	mux.HandleFunc("GET /api/itineraries/search", s.handleSearch)
	mux.HandleFunc("GET /api/itineraries/mine", s.requireAuth(s.handleListMine))
	mux.HandleFunc("POST /api/itineraries", s.requireAuth(s.handleCreate))
	mux.HandleFunc("GET /api/itineraries/{id}", s.optionalAuth(s.handleView))
	mux.HandleFunc("GET /api/itineraries/{id}/edit", s.requireAuth(s.handleGetOwned))
	mux.HandleFunc("PUT /api/itineraries/{id}", s.requireAuth(s.handleUpdate))
	mux.HandleFunc("DELETE /api/itineraries/{id}", s.requireAuth(s.handleDelete))
	mux.HandleFunc("POST /api/toggle-like/{id}", s.requireAuth(s.handleToggleLike))
	mux.HandleFunc("GET /api/sync-itineraries", s.requireAuth(s.handleSync))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	var h http.Handler = mux
	if !s.cacheEnabled {
		h = noStore(h)
	}
	return s.observe(h)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP server started", "address", s.address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(context.Background(), "Stopping HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
