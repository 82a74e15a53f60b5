package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-tracker/internal/config"
	"wallet-tracker/internal/dispatch"
	"wallet-tracker/internal/geyser"
	"wallet-tracker/internal/monitor"
	"wallet-tracker/internal/observability"
	"wallet-tracker/internal/oracle"
	"wallet-tracker/internal/parser"
	"wallet-tracker/internal/pubsub"
	"wallet-tracker/internal/solana"
	"wallet-tracker/internal/storage"
	chstore "wallet-tracker/internal/storage/clickhouse"
	"wallet-tracker/internal/storage/memory"
	"wallet-tracker/internal/storage/migrations"
	pgstore "wallet-tracker/internal/storage/postgres"
)

func main() {
	useMemory := flag.Bool("use-memory", false, "Use in-memory swap record storage instead of PostgreSQL")
	disableMonitor := flag.Bool("disable-monitor", false, "Disable the WebSocket new-token monitor")
	flag.Parse()

	logger := log.New(os.Stdout, "[tracker] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Config: %v", err)
	}

	metrics := observability.NewMetrics("")

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, logger, metrics, cfg, *useMemory, *disableMonitor)
	close(done)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}
	logger.Println("Shutdown complete")
}

func run(ctx context.Context, logger *log.Logger, metrics *observability.Metrics, cfg *config.Config, useMemory, disableMonitor bool) error {
	publisher, err := pubsub.NewRedisPublisher(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer publisher.Close()

	if !useMemory && cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (pass --use-memory for in-memory storage)")
	}

	var records parser.RecordLookup = memory.NewSwapRecordStore()
	if !useMemory {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		records = pgstore.NewSwapRecordStore(pool)
	}

	var archive storage.TxEventStore
	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("migrate clickhouse: %w", err)
		}
		defer conn.Close()
		archive = chstore.NewTxEventStore(conn)
	}

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint)
	prices := oracle.NewClient(rpc, logger, metrics)

	subscriber, err := geyser.NewSubscriber(geyser.Config{
		Endpoint:    cfg.GeyserEndpoint,
		APIKey:      cfg.GeyserAPIKey,
		QueueSize:   cfg.QueueSize,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		MaxAttempts: cfg.MaxAttempts,
		Logger:      logger,
		Metrics:     metrics,
	}, cfg.WatchAddresses)
	if err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}

	dispatcher, err := dispatch.New(subscriber.Frames(), publisher, dispatch.Config{
		Channel: cfg.EventChannel,
		ParserDeps: parser.Deps{
			Prices:        prices,
			Records:       records,
			LookupTimeout: cfg.LookupTimeout,
			Logger:        logger,
		},
		Archive: archive,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	errCh := make(chan error, 3)

	go func() {
		errCh <- wrap("subscriber", subscriber.Run(ctx))
	}()
	go func() {
		errCh <- wrap("dispatcher", dispatcher.Run(ctx))
	}()

	var tokenMonitor *monitor.Monitor
	if !disableMonitor {
		tokenMonitor, err = monitor.New(publisher, monitor.Config{
			RPCEndpoint: cfg.RPCEndpoint,
			Channel:     cfg.NewTokenChannel,
			Commitment:  cfg.Commitment,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    cfg.MaxDelay,
			MaxAttempts: cfg.MaxAttempts,
			Logger:      logger,
			Metrics:     metrics,
		})
		if err != nil {
			return fmt.Errorf("create monitor: %w", err)
		}
		go func() {
			errCh <- wrap("monitor", tokenMonitor.Run(ctx))
		}()
	}

	logger.Printf("Tracking %d address(es), publishing to %q", len(cfg.WatchAddresses), cfg.EventChannel)

	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errCh:
	}

	subscriber.Stop()
	if tokenMonitor != nil {
		tokenMonitor.Stop()
	}
	return err
}

func wrap(name string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}
