// Command taskrelay-server runs the trigger gateway, the task workers, and
// the notification dispatch in a single process backed by SQLite.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/tsudo/taskrelay/internal/config"
	"github.com/tsudo/taskrelay/internal/coordinator"
	"github.com/tsudo/taskrelay/internal/gateway"
	"github.com/tsudo/taskrelay/internal/logging"
	"github.com/tsudo/taskrelay/internal/metrics"
	"github.com/tsudo/taskrelay/internal/notify"
	"github.com/tsudo/taskrelay/internal/persistence"
	"github.com/tsudo/taskrelay/internal/taskqueue"
	"github.com/tsudo/taskrelay/pkg/activity"
	"github.com/tsudo/taskrelay/pkg/api"
	"github.com/tsudo/taskrelay/pkg/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "taskrelay-server:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	slog.SetDefault(logger)

	db, err := sql.Open("sqlite", cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	store, err := persistence.NewSQLiteInstanceStore(db)
	if err != nil {
		return fmt.Errorf("init instance store: %w", err)
	}
	queue, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return fmt.Errorf("init task queue: %w", err)
	}

	var notifier api.Notifier
	if cfg.Channel.AccessToken != "" {
		notifier = notify.NewPushClient(cfg.Channel.Endpoint, cfg.Channel.AccessToken)
	} else {
		logger.Warn("no channel access token configured, notifications go to the log")
		notifier = notify.NewLogNotifier(logger)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observer := api.NewCompositeObserver(
		api.NewLoggingObserver(logger),
		metrics.NewObserver(registry),
	)

	coord := coordinator.New(store, queue, activity.Wait(cfg.Activity.WaitDuration), notifier, coordinator.Config{
		Retry: api.RetryPolicy{
			MaxAttempts:       cfg.Retry.MaxAttempts,
			InitialBackoff:    cfg.Retry.InitialBackoff,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
			MaxBackoff:        cfg.Retry.MaxBackoff,
		},
		ActivityTimeout: cfg.Activity.Timeout,
		Observer:        observer,
		Logger:          logger,
	})

	// Re-enqueue instances stranded by the previous process before any
	// worker starts consuming.
	recovered, err := coord.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovery scan: %w", err)
	}
	if recovered > 0 {
		logger.Info("recovered unfinished instances", "count", recovered)
	}

	var verifier gateway.Verifier
	if cfg.Channel.Secret != "" {
		verifier = gateway.NewHMACVerifier(cfg.Channel.Secret)
	} else {
		logger.Warn("no channel secret configured, request signatures are not verified")
		verifier = gateway.NoopVerifier{}
	}

	mux := http.NewServeMux()
	gateway.NewHandler(coord, verifier, logger).Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	w := worker.New(coord, queue, logger)
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		g.Go(func() error {
			err := w.Run(gCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Server.Addr)
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
