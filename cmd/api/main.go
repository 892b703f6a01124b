package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stockroomhq/stockroom-backend/api/routes"
	"github.com/stockroomhq/stockroom-backend/internal/assignments"
	"github.com/stockroomhq/stockroom-backend/internal/auth"
	"github.com/stockroomhq/stockroom-backend/internal/categories"
	"github.com/stockroomhq/stockroom-backend/internal/employees"
	"github.com/stockroomhq/stockroom-backend/internal/history"
	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	"github.com/stockroomhq/stockroom-backend/internal/products"
	"github.com/stockroomhq/stockroom-backend/internal/sales"
	"github.com/stockroomhq/stockroom-backend/internal/scan"
	zohowebhook "github.com/stockroomhq/stockroom-backend/internal/webhooks/zoho"
	"github.com/stockroomhq/stockroom-backend/pkg/config"
	"github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/metrics"
	"github.com/stockroomhq/stockroom-backend/pkg/migrate"
	"github.com/stockroomhq/stockroom-backend/pkg/redis"
	"github.com/stockroomhq/stockroom-backend/pkg/storage/local"
	"github.com/stockroomhq/stockroom-backend/pkg/zoho"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	serviceMetrics := metrics.NewServiceMetrics(registry)

	files, err := local.NewStore(ctx, cfg.Storage, logg)
	if err != nil {
		logg.Error(ctx, "failed to prepare local storage", err)
		os.Exit(1)
	}

	zohoClient, err := zoho.NewClient(cfg.Zoho, zoho.NewDBTokenStore(dbClient.DB()), logg, serviceMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create zoho client", err)
		os.Exit(1)
	}

	recorder, err := history.NewRecorder(dbClient.DB(), logg)
	if err != nil {
		logg.Error(ctx, "failed to create history recorder", err)
		os.Exit(1)
	}

	ledgerRepo := ledger.NewRepository(dbClient.DB())

	authService, err := auth.NewService(dbClient.DB(), cfg.JWT, cfg.Password, cfg.AuthRateLimit, redisClient, logg)
	if err != nil {
		logg.Error(ctx, "failed to create auth service", err)
		os.Exit(1)
	}

	productService, err := products.NewService(dbClient, ledgerRepo, products.NewRepository(dbClient.DB()), files, recorder, logg)
	if err != nil {
		logg.Error(ctx, "failed to create product service", err)
		os.Exit(1)
	}

	scanService, err := scan.NewService(dbClient, ledgerRepo, scan.NewRepository(dbClient.DB()), logg, serviceMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create scan service", err)
		os.Exit(1)
	}

	assignmentService, err := assignments.NewService(dbClient, ledgerRepo, assignments.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(ctx, "failed to create assignment service", err)
		os.Exit(1)
	}

	salesService, err := sales.NewService(dbClient, ledgerRepo, sales.NewRepository(dbClient.DB()), zohoClient, logg, serviceMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create sales service", err)
		os.Exit(1)
	}

	categoryService, err := categories.NewService(dbClient.DB())
	if err != nil {
		logg.Error(ctx, "failed to create category service", err)
		os.Exit(1)
	}

	employeeService, err := employees.NewService(dbClient.DB())
	if err != nil {
		logg.Error(ctx, "failed to create employee service", err)
		os.Exit(1)
	}

	webhookProcessor, err := zohowebhook.NewProcessor(salesService, redisClient, cfg.Webhook.IdempotencyTTL, logg, serviceMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create webhook processor", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Deps{
		Config:            cfg,
		Logger:            logg,
		DBPinger:          dbClient,
		RedisClient:       redisClient,
		AuthService:       authService,
		ProductService:    productService,
		ScanService:       scanService,
		AssignmentService: assignmentService,
		SalesService:      salesService,
		CategoryService:   categoryService,
		EmployeeService:   employeeService,
		HistoryRecorder:   recorder,
		ZohoClient:        zohoClient,
		WebhookProcessor:  webhookProcessor,
		MetricsHandler:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		UploadsDir:        files.Dir(),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	runCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(runCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stopCtx.Done():
		logg.Info(runCtx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "graceful shutdown failed", err)
		}
	}
}
