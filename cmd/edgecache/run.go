package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"
	"golang.org/x/sync/errgroup"

	"github.com/eugener/edgecache/internal/auth"
	"github.com/eugener/edgecache/internal/cache"
	"github.com/eugener/edgecache/internal/circuitbreaker"
	"github.com/eugener/edgecache/internal/config"
	"github.com/eugener/edgecache/internal/origin"
	"github.com/eugener/edgecache/internal/policy"
	"github.com/eugener/edgecache/internal/ratelimit"
	"github.com/eugener/edgecache/internal/server"
	"github.com/eugener/edgecache/internal/storage/sqlite"
	"github.com/eugener/edgecache/internal/telemetry"
	"github.com/eugener/edgecache/internal/worker"
)

// purgeLimitIdle is how long a client's purge bucket survives without use.
const purgeLimitIdle = 10 * time.Minute

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(config.NewLogger(os.Stderr, cfg.Log))

	slog.Info("starting edgecache", "version", version, "addr", cfg.Server.Addr, "origin", cfg.Origin.URL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Tracing
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, telemetry.TracingOptions{
			Endpoint:   cfg.Telemetry.Tracing.Endpoint,
			SampleRate: cfg.Telemetry.Tracing.SampleRate,
			Version:    version,
		})
		if err != nil {
			return err
		}
		defer shutdown(context.WithoutCancel(ctx)) //nolint:errcheck
	}

	// Metrics
	var metrics *telemetry.Metrics
	var metricsHandler http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// Cache
	opts := cache.Options{
		Backend:    cfg.Cache.Backend,
		MaxEntries: cfg.Cache.MaxEntries,
		Shards:     cfg.Cache.Shards,
		MaxTTL:     cfg.Cache.MaxTTL,
		Policy:     &policy.Edge{DefaultTTL: cfg.Cache.DefaultTTL},
	}
	if metrics != nil {
		opts.Recorder = metrics
	}
	factory, err := cache.NewFactory(opts)
	if err != nil {
		return err
	}
	c := factory.Default()

	var workers []worker.Worker
	workers = append(workers, worker.NewSweeper(cfg.Cache.SweepInterval, entryReporter(metrics), c))

	// Origin
	originOpts := origin.Options{
		BaseURL:      cfg.Origin.URL,
		Host:         cfg.Origin.Host,
		Timeout:      cfg.Origin.Timeout,
		MaxBodyBytes: cfg.Origin.MaxBodyBytes,
	}
	if metrics != nil {
		originOpts.Observer = metrics
	}
	var breaker *circuitbreaker.Breaker
	if bc := cfg.Origin.Breaker; bc.Enabled {
		breaker = circuitbreaker.NewBreaker(circuitbreaker.Config{
			ErrorThreshold: bc.ErrorThreshold,
			MinSamples:     bc.MinSamples,
			Window:         bc.Window,
			OpenTimeout:    bc.OpenTimeout,
		}, breakerReporter(metrics))
		originOpts.Breaker = breaker
	}
	if cfg.Origin.DNSCache {
		resolver := &dnscache.Resolver{}
		originOpts.Resolver = resolver
		workers = append(workers, worker.NewDNSRefresher(resolver, cfg.Origin.DNSRefresh))
	}
	up, err := origin.New(originOpts)
	if err != nil {
		return err
	}

	deps := server.Deps{
		Cache:          c,
		Origin:         up,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	}
	if breaker != nil {
		deps.Breaker = breaker
	}

	// Purge audit log
	if cfg.Database.Enabled {
		store, err := sqlite.New(cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer store.Close()

		rec := worker.NewPurgeRecorder(store, queueReporter(metrics))
		workers = append(workers, rec)
		if cfg.Database.Retention > 0 {
			workers = append(workers, worker.NewPurgeRetention(store, cfg.Database.Retention))
		}
		deps.Purges = rec
		deps.PurgeLog = store
		deps.ReadyCheck = store.Ping
	}

	// Admin API
	if cfg.Admin.APIKey != "" {
		a, err := auth.NewStaticKey(cfg.Admin.APIKey)
		if err != nil {
			return err
		}
		deps.Auth = a
		if cfg.Admin.PurgeRPM > 0 {
			limits := ratelimit.NewRegistry(cfg.Admin.PurgeRPM, purgeLimitIdle)
			deps.PurgeLimit = limits
			workers = append(workers, worker.NewSweeper(purgeLimitIdle, nil, limits))
		}
	} else {
		slog.Warn("admin api disabled, no admin.api_key configured")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.New(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Workers stop with ctx; the HTTP server shuts down first so the purge
	// recorder can drain what the last requests enqueued.
	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.NewRunner(workers...).Run(workerCtx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	slog.Info("edgecache ready", "addr", cfg.Server.Addr, "backend", cfg.Cache.Backend)

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		stopWorkers()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("edgecache stopped")
	return nil
}

func entryReporter(m *telemetry.Metrics) func(string, int) {
	if m == nil {
		return nil
	}
	return m.SetEntries
}

func queueReporter(m *telemetry.Metrics) func(int) {
	if m == nil {
		return nil
	}
	return func(n int) { m.PurgeQueueLength.Set(float64(n)) }
}

func breakerReporter(m *telemetry.Metrics) func(from, to circuitbreaker.State) {
	return func(from, to circuitbreaker.State) {
		slog.Warn("origin breaker state changed", "from", from.String(), "to", to.String())
		if m != nil {
			m.BreakerState.Set(float64(to))
		}
	}
}
