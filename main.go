package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"center-scheduler/api"
	"center-scheduler/capacity"
	"center-scheduler/config"
	"center-scheduler/metrics"
	"center-scheduler/queue"
	"center-scheduler/scheduler"
	"center-scheduler/store"
)

func main() {
	// Define flags
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	addr := flag.String("addr", "", "Listen address, overrides config")
	metricsAddr := flag.String("metrics-addr", "", "Address to expose Prometheus metrics (e.g., :9090)")

	// Parse command-line flags
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	logger := log.New(os.Stdout, "[scheduler] ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Data source selection is explicit: a postgres store that cannot be
	// reached aborts startup, it never degrades to the memory store.
	var st store.Store
	switch cfg.DataSource {
	case config.SourcePostgres:
		pg, err := store.Open(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Fatalf("postgres: %v", err)
		}
		defer pg.Close()
		st = pg
		logger.Printf("using postgres data source")
	default:
		st = store.NewMemoryStore()
		logger.Printf("using in-memory data source")
	}

	var locks scheduler.SlotLocker
	switch cfg.LockBackend {
	case config.LockRedis:
		client, err := scheduler.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer client.Close()
		locks = scheduler.NewRedisSlotLocker(client, cfg.LockTTL)
		logger.Printf("using redis slot locking")
	default:
		locks = scheduler.NewLocalSlotLocker()
	}

	tracker := capacity.NewTracker(st, cfg.CapacityFor)
	sched := scheduler.New(st, tracker, locks, nil, logger)
	qm := queue.NewManager(st, sched, nil, time.Duration(cfg.AvgServiceMinutes)*time.Minute)
	handler := api.New(sched, qm, tracker, cfg.APIToken, logger).Handler()

	// Start metrics server if address provided
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
			logger.Printf("metrics server listening on %s/metrics", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Printf("metrics server error: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Printf("scheduler listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown error: %v", err)
	}
}
