// Package server is the composition root: it opens the store, builds the
// services and handlers, and mounts them on a chi router.
//
// Routes:
//
//	GET    /healthz                          store ping
//	GET    /metrics                          Prometheus scrape endpoint
//	POST   /auth/login/start                 send a one-time code   (rate limited)
//	POST   /auth/login/verify                exchange it for a session (rate limited)
//	POST   /auth/logout                      clear the session cookie
//	GET    /api/me                           who am I (optional auth)
//	GET    /api/profile                      profile (auth)
//	PUT    /api/profile/handle               change handle (auth)
//	GET    /api/memes?sort=                  board listing
//	GET    /api/memes/{id}                   one meme
//	POST   /api/memes                        post a meme (auth)
//	POST   /api/memes/{id}/interactions      react to a meme (auth)
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/sakif/memeboard/internal/auth"
	"github.com/sakif/memeboard/internal/config"
	"github.com/sakif/memeboard/internal/handle"
	"github.com/sakif/memeboard/internal/handler"
	"github.com/sakif/memeboard/internal/metrics"
	"github.com/sakif/memeboard/internal/middleware"
	"github.com/sakif/memeboard/internal/repository"
	"github.com/sakif/memeboard/internal/repository/postgres"
	sqliteRepo "github.com/sakif/memeboard/internal/repository/sqlite"
	"github.com/sakif/memeboard/internal/service"
)

// Server owns the router and the store; the store is closed when Start
// returns.
type Server struct {
	router  *chi.Mux
	cfg     *config.Config
	logger  *slog.Logger
	store   repository.Store
	metrics *metrics.Metrics
}

// OpenStore opens the backend selected by cfg.DBDriver.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.DatabaseURL, postgres.Options{MaxConns: cfg.DBMaxConns})
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return db, nil

	case config.DriverSQLite:
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		return db, nil

	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

// NewProvider builds the identity provider selected by cfg.AuthProvider.
func NewProvider(cfg *config.Config, logger *slog.Logger) (auth.IdentityProvider, error) {
	switch cfg.AuthProvider {
	case config.ProviderPasswordless:
		return auth.NewPasswordlessProvider(cfg.AuthDomain, cfg.AuthClientID, cfg.AuthClientSecret), nil
	case config.ProviderDev:
		logger.Warn("using the dev identity provider: login codes are written to the log")
		return auth.NewDevProvider(logger), nil
	default:
		return nil, fmt.Errorf("unknown AUTH_PROVIDER %q", cfg.AuthProvider)
	}
}

// New wires every layer on top of store. The server takes ownership of
// store.
func New(cfg *config.Config, store repository.Store, provider auth.IdentityProvider, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
	}
	s.setupRoutes(tokens, provider)
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(tokens *auth.TokenService, provider auth.IdentityProvider) {
	// === Services ===
	identity := service.NewIdentityService(s.store, tokens, provider, handle.NewAllocator(s.store), s.metrics, s.logger)
	catalog := service.NewCatalogService(s.store, s.store, s.metrics, s.logger)
	ledger := service.NewLedgerService(s.store, s.metrics, s.logger)

	// === Handlers ===
	cookies := auth.CookieOptions{Secure: s.cfg.CookieSecure}
	authHandler := handler.NewAuthHandler(identity, cookies, s.logger)
	memeHandler := handler.NewMemeHandler(catalog, ledger, s.logger)
	healthHandler := handler.NewHealthHandler(s.store, s.logger)
	loginLimiter := middleware.NewRateLimiter(s.cfg.LoginRatePerMinute, s.cfg.LoginBurst)

	// === Global middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, s.metrics))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	// Every other route resolves the session; handle backfill and credential
	// refresh happen here.
	s.router.Group(func(r chi.Router) {
		r.Use(auth.Session(identity, cookies, s.logger))

		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimiter.Middleware).Post("/login/start", authHandler.HandleLoginStart)
			r.With(loginLimiter.Middleware).Post("/login/verify", authHandler.HandleLoginVerify)
			r.Post("/logout", authHandler.HandleLogout)
		})

		r.Route("/api", func(r chi.Router) {
			r.Get("/me", authHandler.HandleMe)
			r.Get("/memes", memeHandler.HandleList)
			r.Get("/memes/{id}", memeHandler.HandleGet)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireUser)
				r.Get("/profile", authHandler.HandleGetProfile)
				r.Put("/profile/handle", authHandler.HandleUpdateHandle)
				r.Post("/memes", memeHandler.HandleCreate)
				r.Post("/memes/{id}/interactions", memeHandler.HandleRecordInteraction)
			})
		})
	})
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests and
// closes the store.
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("db_driver", s.cfg.DBDriver),
			slog.String("auth_provider", s.cfg.AuthProvider),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
