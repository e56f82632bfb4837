package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"settlement/internal/amqp"
	"settlement/internal/backend"
	"settlement/internal/cache"
	"settlement/internal/config"
	"settlement/internal/ledger"
	"settlement/internal/log"
	"settlement/internal/sheets/google"
	"settlement/internal/worker"
)

const (
	startupLookback = 31 * 24 * time.Hour
	rowCacheTTL     = 24 * time.Hour
	cleanupInterval = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Failed to load configuration", log.FieldError, err)
		os.Exit(1)
	}

	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		JSON:      strings.EqualFold(cfg.LogFormat, "json"),
		Component: log.ComponentWorker,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)

	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Sync worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting sheets sync worker",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName,
		"queue", cfg.AMQPQueue)

	rowCache := cache.NewLRUCache[int](cfg.SheetsRowCacheSize, rowCacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(rowCache)
	cacheManager.StartCleanup(cleanupInterval)
	defer cacheManager.Stop()

	mirror, err := google.NewFromCredentialsFile(ctx, google.Config{
		SpreadsheetID: cfg.GoogleSpreadsheetID,
		SheetName:     cfg.GoogleSheetName,
		Location:      cfg.Location(),
		RowCache:      rowCache,
	}, cfg.GoogleCredentialsFile)
	if err != nil {
		return err
	}

	// The ledger is only needed for the startup backfill; the worker keeps
	// consuming events without it.
	var store ledger.Store
	if res, err := openLedger(ctx, cfg, logger); err != nil {
		logger.Warn("Ledger unavailable, skipping startup sync", log.FieldError, err)
	} else {
		defer res.Close()
		store = res.Store
	}

	client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return err
	}
	defer client.Close()

	syncWorker := worker.NewSyncWorker(mirror, store)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := syncWorker.StartupSync(gctx, startupLookback); err != nil {
			logger.Error("Startup sync failed", log.FieldOperation, log.OpStartup, log.FieldError, err)
		}
		return nil
	})
	g.Go(func() error {
		return client.ConsumeExpenseEvents(gctx, syncWorker.HandleExpenseEvent)
	})

	err = g.Wait()
	logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openLedger(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.BackendResult, error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
}
