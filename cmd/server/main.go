package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mesapos/api/internal/blob"
	"github.com/mesapos/api/internal/config"
	"github.com/mesapos/api/internal/invoice"
	"github.com/mesapos/api/internal/mail"
	"github.com/mesapos/api/internal/router"
	"github.com/mesapos/api/internal/service"
	"github.com/mesapos/api/internal/store"
	"github.com/mesapos/api/internal/worker"
	"github.com/mesapos/api/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// dev: pretty, prod: JSON
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer closeStore()

	hub := ws.NewHub()
	go hub.Run(ctx)

	blobs, err := blob.NewLocal(cfg.BlobDir, cfg.BlobBaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare blob directory")
	}

	tables := service.NewTableService(st, hub)
	if _, err := tables.EnsureCanonicalTables(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to reconcile tables")
	}

	renderer := invoice.NewRenderer(invoice.Business{
		Name:    cfg.BusinessName,
		TaxID:   cfg.BusinessTaxID,
		Address: cfg.BusinessAddress,
		Email:   cfg.SMTPFrom,
		Phone:   cfg.BusinessPhone,
	}, cfg.Location())

	invoices, waitInvoices := startInvoiceDelivery(ctx, cfg, st, renderer)

	r := router.New(cfg, router.Deps{
		Tables:    tables,
		Inventory: service.NewInventoryService(st, blobs),
		Staff:     service.NewStaffService(st, blobs),
		Orders:    service.NewOrderService(st, hub),
		Sales:     service.NewSaleService(st, hub, invoices),
		Renderer:  renderer,
		Invoices:  invoices,
		Media:     blobs.Handler(),
		Hub:       hub,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	waitInvoices()
	log.Info().Msg("server exited")
}

// openStore connects the configured document store. The returned func
// releases it.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return store.NewMemory(), func() {}, nil
	}

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store.NewPG(pool), pool.Close, nil
}

// startInvoiceDelivery picks how invoice emails leave the process: a Redis
// queue drained by a worker pool when REDIS_URL is set, otherwise a
// goroutine per email. Without SMTP there is no delivery at all and the
// returned queue is nil.
func startInvoiceDelivery(ctx context.Context, cfg *config.Config, st store.Store, renderer *invoice.Renderer) (service.InvoiceQueue, func()) {
	if !cfg.SMTPConfigured() {
		log.Warn().Msg("SMTP not configured; invoice emails disabled")
		return nil, func() {}
	}

	mailer := mail.NewMailer(mail.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	// The worker only reads sales, so it gets its own service without side effects.
	proc := worker.NewInvoiceWorker(service.NewSaleService(st, nil, nil), renderer, mailer)

	if cfg.RedisURL == "" {
		inline := worker.NewInline(ctx, proc)
		return inline, inline.Wait
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	pool := worker.StartPool(ctx, rdb, cfg.WorkerPoolSize, proc)
	return worker.NewDispatcher(rdb), func() {
		pool.Wait()
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("close redis")
		}
	}
}
