package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kmc/ehr-api/internal/config"
	"github.com/kmc/ehr-api/internal/email"
	"github.com/kmc/ehr-api/internal/handler/health"
	"github.com/kmc/ehr-api/internal/handler/prometheus"
	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository/postgres"
	"github.com/kmc/ehr-api/pkg/logger"
	"github.com/kmc/ehr-api/pkg/messaging/redis"
	"github.com/kmc/ehr-api/pkg/metrics"
	"github.com/kmc/ehr-api/pkg/worker"
)

const cleanupInterval = time.Hour

func main() {
	var configPath, healthAddr string

	cmd := &cobra.Command{
		Use:          "ehr-worker",
		Short:        "Deliver outbox events to Redis and send receipt e-mails",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return run(cfg, healthAddr)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yml")
	cmd.Flags().StringVar(&healthAddr, "health-addr", ":8081", "listen address for health and metrics")

	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("worker failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, healthAddr string) error {
	lg := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.Format == "json",
	})
	log.Logger = lg.ZL

	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("the worker needs the postgres storage driver, got %q", cfg.Storage.Driver)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prom := prometheus.New(cfg.Monitoring.Namespace)
	m := metrics.NewMetrics(cfg.Monitoring.Namespace, "worker", prom.Registry())

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	store := postgres.NewStore(db, m)

	broker, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:          cfg.Redis.URL,
		Channel:      cfg.Redis.Channel,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, lg)
	if err != nil {
		return err
	}
	defer broker.Close()

	var mailer email.Service = email.Noop{}
	if cfg.SMTP.Enabled {
		mailer = email.NewSMTPService(cfg.SMTP, lg)
	} else {
		lg.Warn("SMTP is disabled, receipts will not be e-mailed")
	}

	processor, err := worker.NewOutboxProcessor(store, broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
		ClaimLease:    cfg.Outbox.ClaimLease,
	}, lg, m)
	if err != nil {
		return err
	}
	processor.Handle(model.EventReceiptIssued, worker.MailReceipts(mailer))
	processor.Handle(model.EventDrugStockLow, worker.WarnLowStock(lg))

	cleanup := worker.NewOutboxCleanupWorker(store.Outbox(), cfg.Outbox.Retention, cleanupInterval, lg)

	srv := healthServer(healthAddr, prom, map[string]health.Pinger{"database": store, "redis": broker})
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error(err, "Health check server failed")
			cancel()
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	lg.Info("Shutting down worker")
	cancel()
	wg.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}

func healthServer(addr string, prom *prometheus.Handler, checks map[string]health.Pinger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	health.NewHandler(checks).RegisterRoutes(&engine.RouterGroup)
	engine.GET("/metrics", prom.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
