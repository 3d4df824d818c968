package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxbuckets/internal/config"
	"github.com/teemow/inboxbuckets/internal/logging"
	"github.com/teemow/inboxbuckets/internal/ratelimit"
	"github.com/teemow/inboxbuckets/internal/server"
	"github.com/teemow/inboxbuckets/internal/store"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// RateLimitConfig selects and configures the rate limiter backend.
type RateLimitConfig struct {
	// Backend is "memory", "sqlite" or "valkey". Empty uses the settings file.
	Backend string

	Valkey ratelimit.ValkeyConfig
}

// serveOptions are the flags of the serve command.
type serveOptions struct {
	httpAddr   string
	userHeader string
	rateLimit  RateLimitConfig
	metrics    MetricsConfig
}

var serveEnv = []envBinding{
	{"http-addr", "HTTP_ADDR"},
	{"user-header", "USER_HEADER"},
	{"rate-limit-backend", "RATE_LIMIT_BACKEND"},
	{"valkey-url", "VALKEY_URL"},
	{"valkey-password", "VALKEY_PASSWORD"},
	{"valkey-db", "VALKEY_DB"},
	{"valkey-key-prefix", "VALKEY_KEY_PREFIX"},
	{"metrics-enabled", "METRICS_ENABLED"},
	{"metrics-addr", "METRICS_ADDR"},
}

// rateLimitPruneInterval is how often the sqlite backend drops old windows.
const rateLimitPruneInterval = 10 * time.Minute

func newServeCmd() *cobra.Command {
	so := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the inbox HTTP API",
		Long: `Start the HTTP API serving the bucketed inbox, the bucket editor, chat search,
message details and new-mail polling under /api.

Users:
  Without --user-header every request acts for the single local user.
  Behind a trusted proxy, --user-header names the header carrying the user id.
  Users connect Gmail with the connect command.

Rate limiting:
  Each route has a per-minute budget per user. Counters live in memory by
  default; use --rate-limit-backend sqlite to share them between processes on
  one host or valkey to share them across hosts.

Probes and metrics:
  /healthz, /readyz and /healthz/detailed are served on the API address.
  Prometheus metrics are served on a dedicated address (--metrics-addr).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveOptions(cmd, opts)
			if err != nil {
				return err
			}
			if err := applyEnv(cmd, serveEnv); err != nil {
				return err
			}
			if so.rateLimit.Backend == "" {
				so.rateLimit.Backend = cfg.RateLimit.Backend
			}
			return runServe(cmd.Context(), cfg, so)
		},
	}

	cmd.Flags().StringVar(&so.httpAddr, "http-addr", server.DefaultHTTPAddr, "HTTP API address. Can also use HTTP_ADDR env var.")
	cmd.Flags().StringVar(&so.userHeader, "user-header", "", "Header set by a trusted proxy carrying the user id. Empty serves a single local user. Can also use USER_HEADER env var.")
	cmd.Flags().StringVar(&so.rateLimit.Backend, "rate-limit-backend", "", "Rate limit backend: memory, sqlite or valkey. Can also use RATE_LIMIT_BACKEND env var.")
	cmd.Flags().StringVar(&so.rateLimit.Valkey.Addr, "valkey-url", "", "Valkey server address (e.g., valkey.namespace.svc:6379). Can also use VALKEY_URL env var.")
	cmd.Flags().StringVar(&so.rateLimit.Valkey.Password, "valkey-password", "", "Valkey authentication password. Can also use VALKEY_PASSWORD env var.")
	cmd.Flags().IntVar(&so.rateLimit.Valkey.DB, "valkey-db", 0, "Valkey database number. Can also use VALKEY_DB env var.")
	cmd.Flags().StringVar(&so.rateLimit.Valkey.Prefix, "valkey-key-prefix", ratelimit.DefaultValkeyPrefix, "Prefix for all Valkey keys. Can also use VALKEY_KEY_PREFIX env var.")
	cmd.Flags().BoolVar(&so.metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&so.metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(parent context.Context, cfg *config.Config, so *serveOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(os.Stderr, logging.FormatJSON, opts.debug)
	slog.SetDefault(logger)

	provider, _ := newInstrumentation(ctx, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if so.metrics.Enabled && provider.Scraped() {
		var err error
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    so.metrics.Addr,
			Path:                    provider.Config().Metrics.Path,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		ln, err := net.Listen("tcp", metricsServer.Addr())
		if err != nil {
			return fmt.Errorf("metrics server failed to start: %w", err)
		}
		go func() {
			if err := metricsServer.Serve(ln); err != nil {
				logger.Error("metrics server stopped", logging.Err(err))
			}
		}()
		defer shutdownWithTimeout(logger, "metrics server", metricsServer.Shutdown)
	}

	a, err := newApp(ctx, opts, cfg, logger, provider.Metrics())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("error during shutdown", logging.Err(err))
		}
	}()

	limiter, closeLimiter, err := newLimiter(ctx, so.rateLimit, a.store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLimiter(); err != nil {
			logger.Error("error closing rate limiter", logging.Err(err))
		}
	}()

	api := server.NewAPI(server.APIConfig{
		Inbox:      a.inbox,
		Limiter:    limiter,
		Policies:   cfg.RateLimitPolicies(),
		UserHeader: so.userHeader,
		Logger:     logger,
		Metrics:    provider.Metrics(),
	})
	health := server.NewHealthChecker(a.serverContext, a.store)
	httpServer, err := server.NewHTTPServer(server.HTTPServerConfig{
		Addr:   so.httpAddr,
		API:    api,
		Health: health,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	ln, err := net.Listen("tcp", so.httpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", so.httpAddr, err)
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Serve(ln); err != nil {
			serverDone <- err
		}
	}()

	logger.Info("inboxbuckets API started",
		"addr", ln.Addr().String(),
		"rate_limit_backend", so.rateLimit.Backend,
		"user_header", so.userHeader != "")

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}

	shutdownWithTimeout(logger, "API server", httpServer.Shutdown)
	return nil
}

// newLimiter builds the configured rate limiter and its close function.
func newLimiter(ctx context.Context, cfg RateLimitConfig, st *store.Store, logger *slog.Logger) (ratelimit.Limiter, func() error, error) {
	switch cfg.Backend {
	case "", config.BackendMemory:
		m := ratelimit.NewMemory(0)
		return m, m.Close, nil
	case config.BackendSQLite:
		pruneCtx, cancel := context.WithCancel(ctx)
		go pruneRateLimits(pruneCtx, st, logger, rateLimitPruneInterval)
		return ratelimit.NewSQLite(st), func() error { cancel(); return nil }, nil
	case config.BackendValkey:
		client, err := ratelimit.NewValkeyClient(cfg.Valkey)
		if err != nil {
			return nil, nil, err
		}
		v := ratelimit.NewValkey(client, cfg.Valkey.Prefix)
		return v, v.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported rate limit backend: %s (supported: memory, sqlite, valkey)", cfg.Backend)
	}
}

// pruneRateLimits drops windows older than an hour until ctx is done.
func pruneRateLimits(ctx context.Context, st *store.Store, logger *slog.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := st.PruneRateLimits(ctx, now.Add(-time.Hour).UnixMilli())
			if err != nil {
				logger.Warn("failed to prune rate limit windows", logging.Err(err))
				continue
			}
			logger.Debug("pruned rate limit windows", logging.Count(int(n)))
		}
	}
}

func shutdownWithTimeout(logger *slog.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("error during "+name+" shutdown", logging.Err(err))
	}
}
