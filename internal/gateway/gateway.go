// ABOUTME: Gateway orchestrator that wires stores, wallet session and funding service to HTTP
// ABOUTME: Manages the HTTP server, health endpoints and shutdown lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/fundgate/internal/auth"
	"github.com/2389/fundgate/internal/config"
	"github.com/2389/fundgate/internal/funding"
	"github.com/2389/fundgate/internal/registry"
	"github.com/2389/fundgate/internal/session"
	"github.com/2389/fundgate/internal/store"
)

// Gateway orchestrates the fundgate server components.
type Gateway struct {
	config     *config.Config
	store      *store.SQLiteStore
	registry   *registry.Service
	regStore   registry.Store
	sessions   *session.Manager
	funding    *funding.Service
	verifier   auth.TokenVerifier
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// initStore opens the SQLite output database.
func initStore(cfg *config.Config, logger *slog.Logger) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	s.SetLogger(logger.With("component", "store"))
	return s, nil
}

// initRegistryStore builds the configured registry backend.
func initRegistryStore(ctx context.Context, cfg config.RegistryConfig) (registry.Store, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return registry.NewFileStore(cfg.Path), nil
	case config.BackendBolt:
		timeout := cfg.LockTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		return registry.NewBoltStore(cfg.Path, timeout)
	case config.BackendS3:
		return registry.NewS3Store(ctx, cfg.S3.Bucket, cfg.S3.Key, cfg.S3.Region)
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Backend)
	}
}

// createVerifier returns nil (auth disabled) when no secret is configured.
func createVerifier(cfg *config.Config, logger *slog.Logger) (auth.TokenVerifier, error) {
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth disabled - no jwt_secret configured")
		return nil, nil
	}
	v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	logger.Info("operator auth enabled (JWT)")
	return v, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	sqlStore, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	regStore, err := initRegistryStore(ctx, cfg.Registry)
	if err != nil {
		_ = sqlStore.Close()
		return nil, fmt.Errorf("initializing registry store: %w", err)
	}

	verifier, err := createVerifier(cfg, logger)
	if err != nil {
		_ = sqlStore.Close()
		_ = closeRegistryStore(regStore)
		return nil, err
	}

	sessions := session.NewManager(session.Config{
		PrivateKey: cfg.Wallet.PrivateKey,
		Network:    cfg.Wallet.Network,
		Keys:       session.NewKeyFile(cfg.Wallet.KeyFile, cfg.Wallet.KeyPassphrase),
		Logger:     logger.With("component", "session"),
	})

	fundingSvc := funding.NewService(sessions, sqlStore, funding.Config{
		DefaultBasket:       cfg.Wallet.DefaultBasket,
		DefaultMemo:         cfg.Wallet.DefaultMemo,
		RequestTTL:          cfg.Wallet.RequestTTL,
		RequireKnownRequest: cfg.Wallet.RequireKnownRequest,
	}, logger.With("component", "funding"))

	gw := &Gateway{
		config:   cfg,
		store:    sqlStore,
		registry: registry.NewService(regStore, logger.With("component", "registry")),
		regStore: regStore,
		sessions: sessions,
		funding:  fundingSvc,
		verifier: verifier,
		logger:   logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	// Operator actions inside the wallet handler are guarded per action.
	mux.HandleFunc("/api/identity-registry", gw.handleIdentityRegistry)
	mux.HandleFunc("/api/server-wallet", gw.handleServerWallet)

	gw.handler = mux
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the HTTP handler serving every gateway route.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run serves until ctx is canceled or the server fails, then shuts down.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}
	g.logger.Info("starting gateway",
		"http_addr", g.config.Server.HTTPAddr,
		"registry_backend", g.config.Registry.Backend,
		"network", g.config.Wallet.Network,
	)

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

func closeRegistryStore(s registry.Store) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.funding.Close()
	errs = appendCloseError(errs, "registry close", closeRegistryStore(g.regStore))
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the wallet session is active and the
// database answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	wallet, err := g.sessions.Active()
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("wallet not initialized"))
		return
	}
	if err := g.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%s)", wallet.IdentityKey)
}
