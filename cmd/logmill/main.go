package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sdko-org/logmill/internal/analytics"
	"github.com/sdko-org/logmill/internal/config"
	"github.com/sdko-org/logmill/internal/database"
	"github.com/sdko-org/logmill/internal/handlers"
	"github.com/sdko-org/logmill/internal/httpserver"
	"github.com/sdko-org/logmill/internal/metrics"
	"github.com/sdko-org/logmill/internal/pipeline"
	"github.com/sdko-org/logmill/internal/retention"
	"github.com/sdko-org/logmill/internal/shipper"
	"github.com/sdko-org/logmill/internal/source"
	"github.com/sdko-org/logmill/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	db, err := database.NewPostgresDB(logger, database.PostgresConfig{
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPassword,
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		DBName:   cfg.PostgresDatabase,
		SSLMode:  cfg.PostgresSSLMode,
	})
	if err != nil {
		logger.WithError(err).Fatal("Database initialization failed")
	}

	store := storage.NewS3Store(cfg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	runner := pipeline.NewRunner(logger, db, store, m, cfg)

	var extraReports []analytics.Definition
	if cfg.ReportsFile != "" {
		extraReports, err = analytics.LoadFile(cfg.ReportsFile)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load report definitions")
		}
	}
	reports := analytics.NewService(logger, db, extraReports)

	srcClient := source.NewClient(logger, cfg)

	api := handlers.NewAPI(logger, cfg, store, runner, reports, srcClient, db)

	r := mux.NewRouter()
	r.Use(handlers.LoggingMiddleware(logger))
	r.Use(handlers.RateLimitMiddleware(cfg))
	handlers.RegisterRoutes(r, api, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := retention.NewSweeper(logger, db, store, cfg)
	go sweeper.Start(ctx)

	if cfg.TailPath != "" {
		ship := shipper.New(logger, store, cfg)
		go func() {
			if err := ship.Run(ctx); err != nil {
				logger.WithError(err).Error("Shipper stopped")
			}
		}()
	}

	server := httpserver.New(cfg.ListenAddr, r)
	if cfg.TLSListenAddr != "" {
		httpserver.StartTLS(logger, cfg.TLSListenAddr, r)
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Server shutdown error")
		}
	}()

	logger.WithField("addr", cfg.ListenAddr).Info("Starting server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("Server failed")
	}
}
