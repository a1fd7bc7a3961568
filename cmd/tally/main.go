package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tally/internal/amqp"
	"tally/internal/backend"
	"tally/internal/balance"
	"tally/internal/cache"
	"tally/internal/config"
	apphttp "tally/internal/http"
	"tally/internal/lifecycle"
	"tally/internal/log"
	"tally/internal/report"
	"tally/internal/services"
)

func main() {
	// .env is for local development; absence is not an error.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.Config{
		Level:     logLevel(cfg.LogLevel),
		Component: log.ComponentApp,
		Format:    cfg.LogFormat,
	})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration invalid", log.FieldError, err)
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

	// The balance cache is keyed on ledger versions; five minutes of TTL
	// only bounds memory, never staleness.
	balanceCache := cache.NewLRUCache[int64](1000, 5*time.Minute)
	cleaner := cache.NewManager()
	cleaner.Register(balanceCache)
	cleaner.StartCleanup(10 * time.Minute)
	defer cleaner.Stop()

	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("connect AMQP", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		logger.Info("transaction feed enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("transaction feed disabled")
	}

	balances := balance.NewEngine(store.Store, balanceCache)
	reports := report.NewEngine(store.Store, balances)
	transactions := services.NewTransactionService(store.Store, publisher, logger)
	coordinator := lifecycle.NewCoordinator(store.Store, logger)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:          ":" + cfg.Port,
		RateLimitRPM:  cfg.RateLimitRPM,
		ReportTimeout: cfg.ReportTimeout,
	}, store.Store, transactions, balances, reports, coordinator, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", log.FieldError, err)
		}
		cancel()
	}()

	logger.Info("starting tally server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", log.FieldError, err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("server stopped")
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
