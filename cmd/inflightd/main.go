// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/absmach/inflight/config"
	"github.com/absmach/inflight/delivery"
	"github.com/absmach/inflight/flowcontrol"
	"github.com/absmach/inflight/metrics"
	"github.com/absmach/inflight/purge"
	"github.com/absmach/inflight/purge/badger"
	"github.com/absmach/inflight/purge/memory"
	"github.com/absmach/inflight/server/health"
	"github.com/absmach/inflight/server/otel"
	"github.com/absmach/inflight/slot"
	"github.com/absmach/inflight/tracker"
	"github.com/absmach/inflight/webhook"
	oteltrace "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	slog.Info("Starting in-flight tracker", "version", "0.1.0")
	slog.Info("Configuration loaded",
		"node_id", cfg.Tracker.NodeID,
		"max_redelivery_attempts", cfg.Tracker.MaxRedeliveryAttempts,
		"storage_type", cfg.Storage.Type,
		"log_level", cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tracer trace.Tracer
	if cfg.Metrics.Enabled {
		shutdown, err := otel.InitProvider(ctx, cfg.Metrics, cfg.Tracker.NodeID)
		if err != nil {
			slog.Error("Failed to initialize OpenTelemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Error("Failed to shut down OpenTelemetry", "error", err)
			}
		}()
		slog.Info("OpenTelemetry initialized", "endpoint", cfg.Metrics.Endpoint)

		if cfg.Metrics.TracesEnabled {
			tracer = oteltrace.Tracer("inflight-tracker")
			slog.Info("Distributed tracing enabled", "sample_rate", cfg.Metrics.TraceSampleRate)
		}
	}

	m, err := metrics.New(nil)
	if err != nil {
		slog.Error("Failed to create metrics", "error", err)
		os.Exit(1)
	}

	purges, err := newPurgeStore(cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize purge store", "error", err)
		os.Exit(1)
	}
	defer purges.Close()

	opts := []tracker.Option{
		tracker.WithLogger(logger),
		tracker.WithMetrics(m),
	}
	if cfg.Webhook.Enabled {
		notifier, err := webhook.NewNotifier(cfg.Webhook, cfg.Tracker.NodeID, webhook.NewHTTPSender(), logger)
		if err != nil {
			slog.Error("Failed to create webhook notifier", "error", err)
			os.Exit(1)
		}
		defer notifier.Close()
		opts = append(opts, tracker.WithNotifier(notifier))
	}

	workers := &fallbackWorkers{
		Workers:  slot.NewWorkers(),
		fallback: slot.WorkerFunc(logSlotCompletion(logger)),
	}
	t, err := tracker.New(tracker.Config{MaxRedeliveryAttempts: cfg.Tracker.MaxRedeliveryAttempts}, workers, purges, opts...)
	if err != nil {
		slog.Error("Failed to create tracker", "error", err)
		os.Exit(1)
	}

	gate := flowcontrol.New(cfg.FlowControl, t)
	svc := delivery.NewService(t, gate, purges, logger, tracer)

	var wg sync.WaitGroup
	serverErr := make(chan error, 1)
	if cfg.Health.Enabled {
		hs := health.New(health.Config{
			Address:         cfg.Health.Addr,
			ShutdownTimeout: cfg.Health.ShutdownTimeout,
			NodeID:          cfg.Tracker.NodeID,
		}, t, svc, purges, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hs.Listen(ctx); err != nil {
				serverErr <- err
			}
		}()
	}

	slog.Info("In-flight tracker started", "dump_path", cfg.Tracker.DumpPath)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(sigChan)

	run(sigChan, serverErr, func() {
		if err := t.DumpToFile(cfg.Tracker.DumpPath); err != nil {
			slog.Error("Failed to dump message status", "error", err)
		}
	})

	cancel()
	wg.Wait()
	slog.Info("In-flight tracker stopped")
}

// run blocks until a shutdown signal or server error, calling dump on
// every SIGUSR1.
func run(sigChan <-chan os.Signal, serverErr <-chan error, dump func()) {
	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGUSR1 {
				dump()
				continue
			}
			slog.Info("Received shutdown signal", "signal", sig)
			return
		case err := <-serverErr:
			slog.Error("Server error", "error", err)
			return
		}
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

func newPurgeStore(cfg config.StorageConfig) (purge.Store, error) {
	switch cfg.Type {
	case "memory":
		slog.Info("Using in-memory purge store")
		return memory.New(), nil
	default:
		store, err := badger.New(badger.Config{Dir: cfg.BadgerDir, GCInterval: cfg.GCInterval})
		if err != nil {
			return nil, err
		}
		slog.Info("Using BadgerDB purge store", "dir", cfg.BadgerDir)
		return store, nil
	}
}

// fallbackWorkers hands slot completions of queues without a registered
// worker to a fallback.
type fallbackWorkers struct {
	*slot.Workers
	fallback slot.Worker
}

func (w *fallbackWorkers) Get(queueName string) (slot.Worker, bool) {
	if worker, ok := w.Workers.Get(queueName); ok {
		return worker, true
	}
	return w.fallback, true
}

func logSlotCompletion(logger *slog.Logger) func(*slot.Slot) {
	return func(s *slot.Slot) {
		logger.Info("slot completed", slog.String("slot", s.String()))
	}
}
