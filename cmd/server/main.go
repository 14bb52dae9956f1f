package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/config"
	"github.com/manodhiambo/carwash-pos-sub000/internal/infra"
	"github.com/manodhiambo/carwash-pos-sub000/internal/metrics"
	"github.com/manodhiambo/carwash-pos-sub000/internal/router"
	"github.com/manodhiambo/carwash-pos-sub000/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: dev pretty, prod JSON
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	m := metrics.New()

	// The breaker guards every gateway call. Deliberate rejections such as an
	// invalid phone do not count against it.
	cbCfg := infra.DefaultCBConfig()
	cbCfg.IsFailure = infra.IsGatewayFailure
	cbCfg.OnStateChange = func(name string, from, to infra.CBState) {
		m.BreakerState(name, int(to))
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
	}
	breaker := infra.NewCircuitBreaker(cbCfg)

	gateway := infra.NewMpesaClient(infra.MpesaConfig{
		BaseURL:         cfg.MpesaBaseURL,
		ConsumerKey:     cfg.MpesaConsumerKey,
		ConsumerSecret:  cfg.MpesaConsumerSecret,
		ShortCode:       cfg.MpesaShortCode,
		PassKey:         cfg.MpesaPassKey,
		CallbackURL:     cfg.MpesaCallbackURL,
		TransactionType: cfg.MpesaTransactionType,
		Location:        cfg.Location(),
	})

	services := router.NewServices(db, rdb, gateway, breaker, cfg, m)

	// Background work: deferred gateway callbacks and the pending sweep
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := worker.NewPool(rdb, m)
	pool.Register(worker.JobTypeMpesaCallback, worker.NewCallbackWorker(services.Mpesa))
	pool.Start(ctx, cfg.WorkerPoolSize)

	worker.StartReconcileCron(ctx, worker.ReconcileCronConfig{
		Reconciler:  services.Mpesa,
		CB:          breaker,
		Interval:    cfg.ReconcileInterval,
		OlderThan:   cfg.ReconcileAfter,
		ExpireAfter: cfg.ReconcileExpiry,
	})

	r := router.New(cfg, router.Deps{
		DB:       db,
		Redis:    rdb,
		Breaker:  breaker,
		Metrics:  m,
		Services: services,
		Queue:    worker.NewDispatcher(rdb),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("carwash engine listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}
