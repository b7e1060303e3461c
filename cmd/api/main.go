package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/padhaihub/backend/internal/auth"
	"github.com/padhaihub/backend/internal/config"
	"github.com/padhaihub/backend/internal/ledger"
	"github.com/padhaihub/backend/internal/notify"
	"github.com/padhaihub/backend/internal/payments"
	"github.com/padhaihub/backend/internal/reconcile"
	"github.com/padhaihub/backend/internal/store"
	"github.com/padhaihub/backend/internal/submissions"
)

// reconcileDelay is how long after creation a pending payment gets its first
// background reconcile, leaving the gateway callback time to arrive first.
const reconcileDelay = 2 * time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	if err := store.RunMigrations(ctx, cfg.DatabaseURL, "up"); err != nil {
		slog.Error("Schema migrations failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Migrations applied")

	// Optional infrastructure: balance cache and notification bus.
	var cache ledger.BalanceCache = ledger.NopBalanceCache{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("Redis unreachable, balance reads will be uncached", "error", err)
		} else {
			cache = ledger.NewRedisBalanceCache(rdb, logger)
			slog.Info("Connected to Redis")
		}
	}

	var emitter notify.Emitter = notify.NopEmitter{}
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			slog.Warn("NATS unreachable, notification events disabled", "error", err)
		} else {
			defer nc.Drain()
			emitter = notify.NewNatsEmitter(nc, logger)
			slog.Info("Connected to NATS")
		}
	}

	// Ledger
	ledgerRepo := ledger.NewRepository(pool)
	ledgerSvc := ledger.NewService(ledgerRepo, cache, emitter)
	ledgerHandler := ledger.NewHandler(ledgerSvc, logger)

	// Auth
	authSvc := auth.NewService([]byte(cfg.JWTSecret), cfg.OperatorKeyHash)

	// Payments: the reconcile enqueue func is set after the River client is
	// created (breaks the init cycle between service and worker).
	var enqueueMu sync.Mutex
	var enqueueFn payments.EnqueueReconcileFunc
	enqueueReconcile := func(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) error {
		enqueueMu.Lock()
		fn := enqueueFn
		enqueueMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, paymentID)
	}

	gateway := payments.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewaySecretKey, cfg.GatewayTimeout)
	paymentsRepo := payments.NewRepository(pool)
	paymentsSvc := payments.NewService(pool, paymentsRepo, gateway, ledgerSvc, emitter, enqueueReconcile, cfg.GatewaySecretKey, logger)
	paymentsHandler := payments.NewHandler(paymentsSvc, authSvc, logger)

	workers := river.NewWorkers()
	river.AddWorker(workers, reconcile.NewWorker(paymentsSvc, gateway, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	enqueueMu.Lock()
	enqueueFn = func(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) error {
		_, err := riverClient.InsertTx(ctx, tx, reconcile.ReconcilePaymentArgs{PaymentID: paymentID}, &river.InsertOpts{
			ScheduledAt: time.Now().Add(reconcileDelay),
		})
		return err
	}
	enqueueMu.Unlock()

	// Submissions
	submissionsRepo := submissions.NewRepository(pool)
	submissionsSvc := submissions.NewService(pool, submissionsRepo, ledgerSvc, emitter, logger)
	submissionsHandler := submissions.NewHandler(submissionsSvc, logger)

	mux := http.NewServeMux()
	RegisterRoutes(mux, authSvc, ledgerHandler, paymentsHandler, submissionsHandler)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Gateway-Key"},
		AllowCredentials: true,
	}).Handler(mux)

	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	slog.Info("Starting HTTP server", "addr", cfg.ListenAddr())
	if err := http.ListenAndServe(cfg.ListenAddr(), corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
