package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/kmc/ehr-api/internal/config"
	authhandler "github.com/kmc/ehr-api/internal/handler/auth"
	billinghandler "github.com/kmc/ehr-api/internal/handler/billing"
	doctorhandler "github.com/kmc/ehr-api/internal/handler/doctor"
	"github.com/kmc/ehr-api/internal/handler/health"
	inventoryhandler "github.com/kmc/ehr-api/internal/handler/inventory"
	medicalhandler "github.com/kmc/ehr-api/internal/handler/medical"
	patienthandler "github.com/kmc/ehr-api/internal/handler/patient"
	"github.com/kmc/ehr-api/internal/handler/prometheus"
	visithandler "github.com/kmc/ehr-api/internal/handler/visit"
	"github.com/kmc/ehr-api/internal/middleware"
	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/internal/repository/memory"
	"github.com/kmc/ehr-api/internal/repository/postgres"
	"github.com/kmc/ehr-api/internal/router"
	authsvc "github.com/kmc/ehr-api/internal/service/auth"
	"github.com/kmc/ehr-api/internal/service/billing"
	"github.com/kmc/ehr-api/internal/service/cascade"
	"github.com/kmc/ehr-api/internal/service/doctor"
	"github.com/kmc/ehr-api/internal/service/identifier"
	"github.com/kmc/ehr-api/internal/service/inventory"
	"github.com/kmc/ehr-api/internal/service/lookup"
	"github.com/kmc/ehr-api/internal/service/medical"
	"github.com/kmc/ehr-api/internal/service/patient"
	"github.com/kmc/ehr-api/internal/service/visit"
	"github.com/kmc/ehr-api/pkg/auth"
	"github.com/kmc/ehr-api/pkg/logger"
	"github.com/kmc/ehr-api/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			return runServer(cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func newLogger(cfg config.LogConfig) *logger.Logger {
	lg := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Format == "json",
	})
	// Middleware logs through the global logger.
	log.Logger = lg.ZL
	return lg
}

func openStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics, lg *logger.Logger, migrate bool) (repository.Store, func(), error) {
	if cfg.Storage.Driver == "memory" {
		lg.Warn("Using in-memory storage, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if migrate {
		n, err := postgres.NewMigrator(db).Up(ctx)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migration failed: %w", err)
		}
		lg.Info("Applied migrations", "count", n)
	}
	return postgres.NewStore(db, m), func() { db.Close() }, nil
}

func corsConfig(cfg config.CORSConfig) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	if len(cfg.AllowedOrigins) > 0 {
		c.AllowOrigins = cfg.AllowedOrigins
	}
	if len(cfg.AllowedMethods) > 0 {
		c.AllowMethods = cfg.AllowedMethods
	}
	if len(cfg.AllowedHeaders) > 0 {
		c.AllowHeaders = cfg.AllowedHeaders
	}
	return c
}

func runServer(cfg *config.Config, migrate bool) error {
	lg := newLogger(cfg.Log)
	ctx := context.Background()

	var (
		prom *prometheus.Handler
		m    *metrics.Metrics
	)
	if cfg.Monitoring.PrometheusEnabled {
		prom = prometheus.New(cfg.Monitoring.Namespace)
		m = metrics.NewMetrics(cfg.Monitoring.Namespace, "", prom.Registry())
	}

	store, closeStore, err := openStore(ctx, cfg, m, lg, migrate)
	if err != nil {
		return err
	}
	defer closeStore()
	lg.Info("Storage ready", "driver", cfg.Storage.Driver)

	// Core services
	ids := identifier.NewGenerator(identifier.Config{
		Prefix: cfg.Identifiers.Prefix,
		Scope:  identifier.Scope(cfg.Identifiers.Scope),
	}, m)
	resolver := lookup.NewResolver(cfg.Lookup.CacheTTL)
	ledger := inventory.NewLedger(cfg.Inventory.LowStockThreshold, lg, m)
	deleter := cascade.NewDeleter(ledger)

	patientSvc := patient.NewService(store, ids, resolver, deleter, lg)
	doctorSvc := doctor.NewService(store, ids, resolver, lg)
	visitSvc := visit.NewService(store, ids, resolver, deleter, lg)
	reportSvc := medical.NewService(store, resolver, lg)
	inventorySvc := inventory.NewService(store, ledger, resolver, lg)
	billingSvc := billing.NewService(store, ids, resolver, deleter, lg, m)

	loginSvc := authsvc.NewService(cfg.Auth.Users,
		auth.NewJWTService(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenExpiry),
		auth.NewBcryptHasher(bcrypt.DefaultCost), lg)

	var authMW *middleware.AuthMiddleware
	if cfg.Auth.Enabled {
		authMW = middleware.NewAuthMiddleware(loginSvc)
	} else {
		lg.Warn("Authentication is disabled")
	}

	routerCfg := router.RouterConfig{
		Mode:           cfg.Server.Mode,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		CORSConfig:     corsConfig(cfg.CORS),
	}
	if cfg.RateLimit.Enabled {
		routerCfg.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerCfg.RateBurst = cfg.RateLimit.Burst
	}

	r := router.NewRouter(
		authMW,
		prom,
		health.NewHandler(map[string]health.Pinger{"database": store}),
		[]router.Handler{authhandler.NewHandler(loginSvc)},
		[]router.Handler{
			patienthandler.NewHandler(patientSvc),
			doctorhandler.NewHandler(doctorSvc),
			visithandler.NewHandler(visitSvc),
			medicalhandler.NewHandler(reportSvc),
			inventoryhandler.NewHandler(inventorySvc),
			billinghandler.NewHandler(billingSvc),
		},
		routerCfg,
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	lg.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	lg.Info("Server stopped")
	return nil
}
