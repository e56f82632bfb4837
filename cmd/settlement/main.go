package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"settlement/internal/amqp"
	"settlement/internal/backend"
	"settlement/internal/config"
	"settlement/internal/log"
	"settlement/internal/services"
	"settlement/internal/telegram"
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
		Component: log.ComponentApp,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)

	if err := cfg.ValidateBot(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Settlement bot stopped with error", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting settlement bot",
		"backend", cfg.DataBackend,
		"timezone", cfg.Timezone,
		"amqp_enabled", cfg.AMQPEnabled())

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	}()

	var publisher services.Publisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without expense events", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	bot, err := telegram.New(telegram.Config{
		Token: cfg.TelegramBotToken,
		Debug: cfg.TelegramDebug,
	}, logger)
	if err != nil {
		return err
	}

	svc := services.NewExpenseService(res.Store, bot, services.Options{
		Location:  cfg.Location(),
		TimeShift: &cfg.TimeShift,
		Payday:    cfg.Payday,
		Publisher: publisher,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Start(gctx, svc)
	})

	err = g.Wait()
	logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
