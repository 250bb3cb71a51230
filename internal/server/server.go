// ABOUTME: Server wires config, storage, auth services and the HTTP API together
// ABOUTME: Run serves HTTP, sweeps expired credentials and shuts down gracefully

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/sanctum/internal/api"
	"github.com/2389/sanctum/internal/auth"
	"github.com/2389/sanctum/internal/config"
	"github.com/2389/sanctum/internal/store"
)

// Server is the sanctum HTTP server.
type Server struct {
	config     *config.Config
	store      store.Store
	tokens     *auth.TokenService
	sessions   *auth.SessionService
	guard      *auth.Guard
	verifier   *auth.CredentialVerifier
	registry   *prometheus.Registry
	httpServer *http.Server
	logger     *slog.Logger

	sweepWG     sync.WaitGroup
	mu          sync.Mutex
	stopSweeper context.CancelFunc

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures a Server.
type Option func(*Server)

// WithStore uses s instead of opening the configured database.
func WithStore(s store.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithVerifier overrides the credential verifier, mainly to lower bcrypt cost in tests.
func WithVerifier(v *auth.CredentialVerifier) Option {
	return func(srv *Server) { srv.verifier = v }
}

// OpenStore creates and returns a store based on config and environment.
func OpenStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	case config.DriverSQLite:
		dbPath := cfg.Database.Path
		if envPath := os.Getenv("SANCTUM_DB_PATH"); envPath != "" {
			dbPath = envPath
		}
		s, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// AuthConfig converts the file configuration into the guard configuration.
func AuthConfig(c config.AuthConfig) auth.Config {
	return auth.Config{
		AllowedOrigins:     append([]string(nil), c.AllowedOrigins...),
		AllowSubdomains:    c.AllowSubdomains,
		SessionCookie:      c.SessionCookie,
		CSRFHeader:         c.CSRFHeader,
		CSRFField:          c.CSRFField,
		SessionIdleTimeout: c.SessionIdleTimeout,
		TokenTTL:           c.TokenTTL,
		StoreTimeout:       c.StoreTimeout,
		SecureCookies:      c.SecureCookies,
	}
}

// New creates a new Server with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{
		config:   cfg,
		registry: prometheus.NewRegistry(),
		logger:   logger.With("component", "server"),
	}
	for _, opt := range opts {
		opt(srv)
	}

	if srv.store == nil {
		s, err := OpenStore(cfg)
		if err != nil {
			return nil, err
		}
		srv.store = s
	}
	if srv.verifier == nil {
		srv.verifier = &auth.CredentialVerifier{}
	}

	srv.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := auth.NewMetrics(srv.registry)

	authCfg := AuthConfig(cfg.Auth)
	authOpts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithMetrics(metrics),
		auth.WithVerifier(srv.verifier),
	}
	srv.tokens = auth.NewTokenService(srv.store, authCfg, authOpts...)
	srv.sessions = auth.NewSessionService(srv.store, authCfg, authOpts...)
	srv.guard = auth.NewGuard(srv.tokens, srv.sessions, authCfg, authOpts...)

	srv.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.routes(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv, nil
}

func (s *Server) routes(logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoint - no auth required
	r.Get("/health", s.handleHealth)

	if s.config.Metrics.Enabled {
		r.Handle(s.config.Metrics.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	api.New(api.Deps{
		Users:    s.store,
		Guard:    s.guard,
		Tokens:   s.tokens,
		Sessions: s.sessions,
		Verifier: s.verifier,
		Logger:   logger,
	}).Register(r)

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Store returns the backing store.
func (s *Server) Store() store.Store {
	return s.store
}

// Verifier returns the credential verifier used for passwords and token secrets.
func (s *Server) Verifier() *auth.CredentialVerifier {
	return s.verifier
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
// The channel receives nil when the server is closed by Shutdown.
func (s *Server) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		err := s.httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- fmt.Errorf("HTTP server: %w", err)
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation, server error or an
// outside Shutdown.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		if err == nil {
			s.logger.Info("server closed")
			return nil
		}
		s.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	s.mu.Lock()
	s.stopSweeper = stopSweeper
	s.mu.Unlock()
	s.startSweeper(sweepCtx)

	errCh := s.startServer(ln)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The run context is already canceled at this point.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, stops the sweeper, drains pending token
// touches and closes the store. It is safe to call while Serve is running;
// later calls return the first call's result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { s.shutdownErr = s.shutdown(ctx) })
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	s.mu.Lock()
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.mu.Unlock()
	s.sweepWG.Wait()
	s.guard.Wait()

	errs = appendCloseError(errs, "store close", s.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
