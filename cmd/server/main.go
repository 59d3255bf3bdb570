/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the workload engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config (YAML, .env, WORKLOAD_* env)
  2. Configure logging
  3. Initialize SQLite store
  4. Build the charge policy, scorer and allocation service
  5. Start the recalculation scheduler
  6. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file (optional)
  -port    HTTP server port, overrides config
  -db      SQLite database path, overrides config
           Use ":memory:" for in-memory database
  -policy  Charge policy (hours/weights), overrides config

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a running pass)
  2. Stop accepting new connections
  3. Wait for active requests to complete (shutdown_timeout)
  4. Close database connection

EXAMPLES:
  ./server -config=./workload.yaml
  ./server -db=":memory:" -policy=weights
  WORKLOAD_SCHEDULER_INTERVAL=1m ./server

SEE ALSO:
  - config/config.go: Keys and precedence
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/warp/workload-engine/allocation"
	"github.com/warp/workload-engine/api"
	"github.com/warp/workload-engine/config"
	"github.com/warp/workload-engine/factory"
	"github.com/warp/workload-engine/logging"
	"github.com/warp/workload-engine/scoring"
	"github.com/warp/workload-engine/store/sqlite"
	"github.com/warp/workload-engine/workload"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	policy := flag.String("policy", "", "Charge policy: hours or weights (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *policy != "" {
		cfg.Charge.Policy = *policy
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New("workload-engine", cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("server exited with error")
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *logrus.Logger) error {
	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	admission, err := factory.NewAdmission(cfg.Charge)
	if err != nil {
		return err
	}

	var scorer scoring.Scorer = scoring.Heuristic{}
	if cfg.Scoring.Endpoint != "" {
		client := scoring.NewClient(cfg.Scoring.Endpoint, cfg.Scoring.Timeout, logger)
		scorer = scoring.NewFallback(client, scoring.Heuristic{}, logger)
	}

	svc := allocation.NewService(store, admission,
		allocation.WithScorer(scorer),
		allocation.WithLogger(logger),
	)

	recalculator := workload.NewRecalculator(store, admission.Policy, workload.SystemClock, logger)
	scheduler := api.NewRecalculationScheduler(recalculator, store, logger)
	scheduler.Interval = cfg.Scheduler.Interval
	scheduler.Enabled = cfg.Scheduler.Enabled

	handler := api.NewHandler(svc, store, api.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL), logger)
	handler.Scheduler = scheduler

	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.Server.AllowedOrigins})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	scheduler.Start()

	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"port":   cfg.Server.Port,
			"db":     cfg.Database.Path,
			"policy": admission.Policy.Kind(),
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
