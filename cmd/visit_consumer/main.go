package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/linksight/linksight/internal/config"
	"github.com/linksight/linksight/internal/events"
	"github.com/linksight/linksight/internal/infrastructure/db"
	"github.com/linksight/linksight/internal/infrastructure/logger"
	"github.com/linksight/linksight/internal/infrastructure/telemetry"
	"github.com/linksight/linksight/internal/processing/links"
	mongoStorage "github.com/linksight/linksight/internal/storage/mongo"
	postgresStorage "github.com/linksight/linksight/internal/storage/postgres"
)

const (
	fetchMaxWait   = 500 * time.Millisecond
	operationTTL   = 5 * time.Second
	consumeBackoff = 500 * time.Millisecond
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.App.Env); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var shutdownTracer func(context.Context) error
	if cfg.OTel.Enabled {
		shutdownTracer, err = telemetry.InitTracer(
			cfg.OTel.Endpoint,
			fmt.Sprintf("%s-visit-consumer", cfg.App.Name),
			cfg.App.Version,
		)
		if err != nil {
			logger.Warn("failed to initialize tracer, continuing without tracing", zap.Error(err))
			shutdownTracer = nil
		}
	}
	defer func() {
		if shutdownTracer == nil {
			return
		}
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("failed to shutdown tracer", zap.Error(err))
		}
	}()

	visitRepo, closeStorage, err := initVisitLedger(cfg)
	if err != nil {
		logger.Fatal("failed to initialize visit ledger", zap.Error(err))
	}
	defer closeStorage()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		GroupID:     cfg.Kafka.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     fetchMaxWait,
		StartOffset: kafka.FirstOffset,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warn("failed to close kafka reader", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("visit consumer started",
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers),
		zap.String("kafka_topic", cfg.Kafka.Topic),
		zap.String("kafka_group", cfg.Kafka.GroupID),
		zap.String("storage", cfg.Storage.Backend),
	)

	tracer := otel.Tracer("visit-consumer")
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("visit consumer stopping")
				return
			}
			logger.Error("failed to fetch kafka message", zap.Error(err))
			time.Sleep(consumeBackoff)
			continue
		}

		consumeCtx := contextFromKafkaHeaders(ctx, msg.Headers)
		consumeCtx, span := tracer.Start(
			consumeCtx,
			"kafka.consume.visit_recorded",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination.name", msg.Topic),
				attribute.String("messaging.operation", "process"),
				attribute.Int("messaging.kafka.partition", msg.Partition),
				attribute.Int64("messaging.kafka.offset", msg.Offset),
			),
		)

		if err := processMessage(consumeCtx, msg, visitRepo); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "process visit event failed")
			logger.Error("failed to process visit event",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			span.End()
			time.Sleep(consumeBackoff)
			continue
		}

		if err := reader.CommitMessages(consumeCtx, msg); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "commit kafka offset failed")
			logger.Error("failed to commit kafka offset",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			span.End()
			time.Sleep(consumeBackoff)
			continue
		}

		span.End()
	}
}

func processMessage(ctx context.Context, msg kafka.Message, visitRepo links.VisitRepository) error {
	var event events.VisitRecorded
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Warn("invalid visit event payload, skipping",
			zap.Error(err),
			zap.ByteString("payload", msg.Value),
		)
		return nil
	}
	if strings.TrimSpace(event.URLID) == "" {
		logger.Warn("visit event missing urlId, skipping", zap.String("event_id", event.EventID))
		return nil
	}

	occurredAt := msg.Time.UTC()
	if strings.TrimSpace(event.OccurredAt) != "" {
		parsed, err := time.Parse(time.RFC3339Nano, event.OccurredAt)
		if err != nil {
			logger.Warn("invalid event occurredAt, using kafka timestamp",
				zap.Error(err),
				zap.String("event_id", event.EventID),
			)
		} else {
			occurredAt = parsed.UTC()
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, operationTTL)
	defer cancel()

	visit := &links.Visit{
		URLID:      event.URLID,
		IPHash:     event.IPHash,
		UserAgent:  event.UserAgent,
		DeviceType: event.DeviceType,
		Referrer:   event.Referrer,
		Timestamp:  occurredAt,
	}

	if err := visitRepo.Insert(opCtx, visit); err != nil {
		if errors.Is(err, links.ErrNotFound) {
			// Event references a link this deployment no longer knows. Safe to skip.
			logger.Info("visit event skipped for unknown link",
				zap.String("event_id", event.EventID),
				zap.String("url_id", event.URLID),
			)
			return nil
		}
		return err
	}

	return nil
}

func initVisitLedger(cfg *config.Config) (links.VisitRepository, func(), error) {
	if cfg.Storage.Backend == config.StorageBackendPostgres {
		pg, err := db.ConnectPostgres(context.Background(), cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		repo, err := postgresStorage.NewVisitsRepository(pg.Pool)
		if err != nil {
			pg.Close()
			return nil, nil, err
		}
		return repo, pg.Close, nil
	}

	conn, err := db.ConnectMongo(cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		return nil, nil, err
	}
	repo, err := mongoStorage.NewVisitsRepository(conn)
	if err != nil {
		_ = conn.Disconnect()
		return nil, nil, err
	}
	return repo, func() { _ = conn.Disconnect() }, nil
}

func contextFromKafkaHeaders(parent context.Context, headers []kafka.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, header := range headers {
		key := strings.ToLower(strings.TrimSpace(header.Key))
		if key == "" {
			continue
		}
		carrier.Set(key, string(header.Value))
	}
	return otel.GetTextMapPropagator().Extract(parent, carrier)
}
