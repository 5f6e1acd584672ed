package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dmehra2102/storefront/internal/auth"
	"github.com/dmehra2102/storefront/internal/order/application"
	orderhttp "github.com/dmehra2102/storefront/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/storefront/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/storefront/internal/order/infrastructure/postgres"
	reviewapp "github.com/dmehra2102/storefront/internal/review/application"
	reviewhttp "github.com/dmehra2102/storefront/internal/review/infrastructure/http"
	reviewpg "github.com/dmehra2102/storefront/internal/review/infrastructure/postgres"
	"github.com/dmehra2102/storefront/pkg/artifact"
	"github.com/dmehra2102/storefront/pkg/idempotency"
	"github.com/dmehra2102/storefront/pkg/outbox"
	"github.com/dmehra2102/storefront/pkg/tracing"
)

func newServeCommand(d *deps) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), d, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}

func serve(ctx context.Context, d *deps, migrate bool) error {
	cfg, log := d.cfg, d.log

	tp, err := tracing.Init(ctx, "order-service", cfg.OTelExporterURL, log)
	if err != nil {
		return fmt.Errorf("otel init: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.WithoutCancel(ctx)) }()

	// Postgres setup
	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		return fmt.Errorf("pg connect: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pg ping: %w", err)
	}
	if migrate {
		if err := orderpg.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)

	// Kafka producer and outbox relay
	writer := orderkafka.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()
	dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
	relay := outbox.NewRelay(log, orderpg.NewOutboxStore(log, pool), dispatch, "order-service-"+uuid.NewString())

	proofs, err := artifact.NewLocalStore(cfg.UploadDir, "uploads")
	if err != nil {
		return err
	}
	authn := auth.Authenticate(log, auth.NewVerifier(cfg.JWTSecret))

	orders := application.NewService(log, orderpg.NewRepository(log, pool, cfg.LockTimeout))
	reviews := reviewapp.NewService(log, reviewpg.NewRepository(log, pool))

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Get("/health", health(time.Now()))
	r.Mount("/api/orders", orderhttp.NewHandler(log, orders, proofs, authn, idem).Routes())
	r.Mount("/api/reviews", reviewhttp.NewHandler(log, reviews, authn).Routes())
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("order-service shutdown complete")
	return nil
}

func health(started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"active","uptime":%.0f,"timestamp":%q}`,
			time.Since(started).Seconds(), time.Now().UTC().Format(time.RFC3339))
	}
}
