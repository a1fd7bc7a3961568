package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tally/internal/amqp"
	"tally/internal/backend"
	"tally/internal/config"
	"tally/internal/export"
	"tally/internal/log"
	"tally/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.Config{
		Level:     logLevel(cfg.LogLevel),
		Component: log.ComponentWorker,
		Format:    cfg.LogFormat,
	})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration invalid", log.FieldError, err)
		os.Exit(1)
	}
	if !cfg.MirrorEnabled() {
		logger.Error("GOOGLE_SPREADSHEET_ID is required; the worker mirrors transactions to a spreadsheet")
		os.Exit(1)
	}

	store, err := backend.Open(cfg, logger)
	if err != nil {
		logger.Error("open storage backend", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Cleanup(); err != nil {
			logger.Error("close storage backend", log.FieldError, err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mirror, err := export.NewSheetsMirror(ctx, export.SheetsConfig{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("initialize spreadsheet mirror", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("spreadsheet mirror ready",
		"spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	exportWorker := worker.NewExportWorker(store.Store, mirror, logger, cfg.SyncBatchSize)

	// Catch up on anything that accumulated while the worker was down.
	if n, err := exportWorker.ProcessPending(ctx); err != nil {
		logger.Error("startup sweep failed", log.FieldError, err)
	} else if n > 0 {
		logger.Info("startup sweep mirrored transactions", "count", n)
	}

	// The feed is optional; without it the periodic sweep does all the work.
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("connect AMQP", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()

		go func() {
			err := client.Consume(ctx, func(event *amqp.TransactionEvent) error {
				return exportWorker.HandleEvent(ctx, event)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("feed consumer stopped", log.FieldError, err)
				cancel()
			}
		}()
	} else {
		logger.Info("transaction feed disabled, relying on periodic sweep")
	}

	go func() {
		if err := exportWorker.Run(ctx, cfg.SyncInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("export sweep stopped", log.FieldError, err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	cancel()
	// Give in-flight mirror writes a moment to finish.
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
