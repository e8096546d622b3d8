package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/splitledger/internal/auth"
	"github.com/MrJamesThe3rd/splitledger/internal/balance"
	"github.com/MrJamesThe3rd/splitledger/internal/balance/rediscache"
	"github.com/MrJamesThe3rd/splitledger/internal/config"
	"github.com/MrJamesThe3rd/splitledger/internal/confirmation"
	"github.com/MrJamesThe3rd/splitledger/internal/database"
	"github.com/MrJamesThe3rd/splitledger/internal/expense"
	expenseStore "github.com/MrJamesThe3rd/splitledger/internal/expense/store"
	"github.com/MrJamesThe3rd/splitledger/internal/group"
	groupStore "github.com/MrJamesThe3rd/splitledger/internal/group/store"
	ledgerHttp "github.com/MrJamesThe3rd/splitledger/internal/http"
	balanceHandler "github.com/MrJamesThe3rd/splitledger/internal/http/balance"
	importHandler "github.com/MrJamesThe3rd/splitledger/internal/http/importcsv"
	settlementHandler "github.com/MrJamesThe3rd/splitledger/internal/http/settlement"
	statementHandler "github.com/MrJamesThe3rd/splitledger/internal/http/statement"
	"github.com/MrJamesThe3rd/splitledger/internal/importer"
	"github.com/MrJamesThe3rd/splitledger/internal/logging"
	"github.com/MrJamesThe3rd/splitledger/internal/notify"
	"github.com/MrJamesThe3rd/splitledger/internal/settlement"
	settlementStore "github.com/MrJamesThe3rd/splitledger/internal/settlement/store"
	"github.com/MrJamesThe3rd/splitledger/internal/statement"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(cfg.DB.Driver, cfg.DataSource())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	sink, closeSink, err := newSink(cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	dispatcher := notify.NewDispatcher(sink, cfg.Settlement.NotifyTimeout)
	defer dispatcher.Wait()

	cache, err := newCache(ctx, cfg)
	if err != nil {
		return err
	}

	var (
		settlements      = settlementStore.New(db)
		groupService     = group.NewService(groupStore.New(db))
		expenseService   = expense.NewService(expenseStore.New(db))
		balanceService   = balance.NewService(expenseService, settlements, cache)
		settleService    = settlement.NewService(settlements, groupService, dispatcher, balanceService, cfg.Settlement.MaxRetries)
		gateway          = confirmation.NewGateway(settlements, dispatcher, balanceService, cfg.Settlement.MaxRetries)
		importService    = importer.NewService()
		statementService = statement.NewService(balanceService, settleService, groupService)
	)

	var (
		balanceH    = balanceHandler.NewHandler(balanceService, importService)
		settlementH = settlementHandler.NewHandler(settleService, gateway, groupService)
		importH     = importHandler.NewHandler(importService, expenseService, groupService, balanceService)
		statementH  = statementHandler.NewHandler(statementService)
	)

	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	router := ledgerHttp.New(tokens, cfg.Server.CORSOrigins, groupService, balanceH, settlementH, importH, statementH)

	if cfg.Settlement.OverdueScanInterval > 0 {
		go scanOverdue(ctx, settleService, cfg.Settlement.OverdueScanInterval)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	errCh := make(chan error, 1)

	go func() {
		slog.Info("starting server", "addr", srv.Addr, "driver", cfg.DB.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// newSink publishes to Kafka when brokers are configured, otherwise to the log.
func newSink(cfg *config.Config) (notify.Sink, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return notify.NewLogSink(slog.Default()), func() {}, nil
	}

	k, err := notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka sink: %w", err)
	}

	slog.Info("publishing events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)

	return k, func() {
		if err := k.Close(); err != nil {
			slog.Warn("failed to close kafka writer", "error", err)
		}
	}, nil
}

func newCache(ctx context.Context, cfg *config.Config) (balance.Cache, error) {
	if cfg.Redis.URL == "" {
		return balance.NopCache{}, nil
	}

	client, err := rediscache.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	slog.Info("caching balances in redis", "ttl", cfg.Redis.BalanceTTL)

	return rediscache.New(client, cfg.Redis.BalanceTTL), nil
}

func scanOverdue(ctx context.Context, svc *settlement.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := svc.NotifyOverdue(ctx, now)
			if err != nil {
				slog.Error("overdue scan failed", "error", err)
				continue
			}

			if n > 0 {
				slog.Info("overdue settlements notified", "count", n)
			}
		}
	}
}
