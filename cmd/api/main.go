package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/linksight/linksight/internal/config"
	"github.com/linksight/linksight/internal/infrastructure/logger"
	"github.com/linksight/linksight/internal/infrastructure/telemetry"
	"github.com/linksight/linksight/internal/processing/links"
	"github.com/linksight/linksight/internal/processing/visits"
	kafkaStorage "github.com/linksight/linksight/internal/storage/kafka"
	httpTransport "github.com/linksight/linksight/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.App.Env); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("env", cfg.App.Env),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("visit_sink", cfg.Visits.Sink),
	)

	var shutdownTracer func(context.Context) error
	if cfg.OTel.Enabled {
		var err error
		shutdownTracer, err = telemetry.InitTracer(cfg.OTel.Endpoint, cfg.App.Name, cfg.App.Version)
		if err != nil {
			logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			logger.Info("OpenTelemetry tracer initialized", zap.String("endpoint", cfg.OTel.Endpoint))
		}
	}

	storage, err := initStorage(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.close()

	var sink visits.Sink = storage.visitRepo
	if cfg.Visits.Sink == config.VisitSinkKafka {
		publisher := kafkaStorage.NewVisitPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("Failed to close kafka publisher", zap.Error(err))
			}
		}()
		sink = publisher
	}

	recorder := visits.NewRecorder(sink, cfg.Visits.QueueSize, cfg.Visits.Workers, cfg.Visits.RecordTimeout)
	anonymizer := visits.NewAnonymizer(cfg.Visits.Salt)

	svc := links.NewService(
		storage.linkRepo,
		storage.visitRepo,
		links.NewCryptoCodeGenerator(),
		cfg.Shortener.CodeLength,
	)

	router := httpTransport.NewRouter(cfg, svc, recorder, anonymizer)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if shutdownTracer != nil {
			_ = shutdownTracer(shutdownCtx)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}

		// Drain queued visits before releasing storage.
		if err := recorder.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Visit recorder drained incompletely",
				zap.Error(err),
				zap.Int64("dropped", recorder.Dropped()),
			)
		}
	}()

	logger.Info("Server starting",
		zap.String("port", cfg.Server.Port),
		zap.String("env", cfg.App.Env),
		zap.String("address", fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)),
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
