/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the working-time checker server that the browser
  extension talks to. Handles configuration, dependency injection, and
  graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, -config JSON file, flags)
  2. Initialize logger and metrics registry
  3. Open the SQLite credential store (runs migrations)
  4. Build token manager -> attendance client -> reconcile engine
  5. Configure HTTP router and start the token keep-alive
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config     JSON configuration file
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: ./data/worktime.db)
              Use ":memory:" for in-memory database
  -log-level  debug, info, warn, error (default: info)
  -dev        Human-readable development logging

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the token keep-alive
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with a config file holding the OAuth client
  ./server -config=./worktime.json

  # Run on different port with debug logs
  ./server -config=./worktime.json -port=3000 -log-level=debug -dev

SEE ALSO:
  - cmd/authorize/main.go: One-off authorization from the terminal
  - api/server.go: Router configuration
  - config/config.go: Settings and defaults
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/warp/worktime-checker/api"
	"github.com/warp/worktime-checker/attendance"
	"github.com/warp/worktime-checker/config"
	"github.com/warp/worktime-checker/generic"
	"github.com/warp/worktime-checker/oauth"
	"github.com/warp/worktime-checker/obs"
	"github.com/warp/worktime-checker/reconcile"
	"github.com/warp/worktime-checker/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	logger, err := obs.NewLogger(cfg.LogLevel, cfg.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	// Initialize store
	store, err := sqlite.New(context.Background(), cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	manager := oauth.NewManager(oauth.Config{
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		TokenURL:        cfg.TokenURL,
		AuthorizeURL:    cfg.AuthorizeURL,
		FreshnessWindow: cfg.FreshnessWindow,
	}, store.Credential(generic.RefreshTokenKey),
		oauth.WithLogger(logger.Named("oauth")),
		oauth.WithMetrics(metrics),
		oauth.WithHTTPClient(httpClient),
	)

	client := attendance.NewClient(attendance.Config{
		BaseURL:   cfg.APIBaseURL,
		CompanyID: generic.CompanyID(cfg.CompanyID),
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, manager,
		attendance.WithLogger(logger.Named("attendance")),
		attendance.WithMetrics(metrics),
		attendance.WithHTTPClient(httpClient),
	)

	engine := reconcile.NewEngine(client,
		reconcile.WithInvalidator(manager),
		reconcile.WithNoteRules(cfg.NoteRules),
		reconcile.WithConcurrency(cfg.FetchConcurrency),
		reconcile.WithLocation(loc),
		reconcile.WithCompanyID(generic.CompanyID(cfg.CompanyID)),
		reconcile.WithLogger(logger.Named("reconcile")),
		reconcile.WithMetrics(metrics),
	)

	handler := api.NewHandler(engine, manager, logger.Named("api"))
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        metrics,
		Log:            logger.Named("http"),
	})

	scheduler := api.NewTokenScheduler(manager, logger)
	scheduler.CheckInterval = cfg.KeepAliveInterval
	scheduler.Enabled = cfg.KeepAliveInterval > 0
	scheduler.Start()
	defer scheduler.Stop()

	// Create server. A run fetches a month of days at the configured rate,
	// so writes get more room than reads.
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.Int64("company_id", cfg.CompanyID),
			zap.String("timezone", loc.String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
