package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/linksight/linksight/internal/events"
	"github.com/linksight/linksight/internal/processing/links"
)

// VisitPublisher is a visit sink that hands records to Kafka instead of
// writing storage directly. The visit consumer owns persistence.
type VisitPublisher struct {
	writer *kafka.Writer
	topic  string
}

func NewVisitPublisher(brokers []string, topic string) *VisitPublisher {
	return &VisitPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

// Insert publishes a VisitRecorded event keyed by link id so per-link
// ordering holds within a partition.
func (p *VisitPublisher) Insert(ctx context.Context, visit *links.Visit) error {
	event := events.VisitRecorded{
		EventID:    uuid.NewString(),
		URLID:      visit.URLID,
		IPHash:     visit.IPHash,
		UserAgent:  visit.UserAgent,
		DeviceType: visit.DeviceType,
		Referrer:   visit.Referrer,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
	}

	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	tracer := otel.Tracer("visit-publisher")
	ctx, span := tracer.Start(
		ctx,
		"kafka.publish.visit_recorded",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", p.topic),
			attribute.String("messaging.operation", "publish"),
			attribute.String("messaging.message.id", event.EventID),
			attribute.String("messaging.kafka.message_key", event.URLID),
		),
	)
	defer span.End()

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.URLID),
		Value:   value,
		Headers: carrierToKafkaHeaders(carrier),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "kafka publish failed")
		return err
	}

	return nil
}

func (p *VisitPublisher) Close() error {
	return p.writer.Close()
}

func carrierToKafkaHeaders(carrier propagation.MapCarrier) []kafka.Header {
	headers := make([]kafka.Header, 0, len(carrier))
	for _, key := range carrier.Keys() {
		value := carrier.Get(key)
		if strings.TrimSpace(value) == "" {
			continue
		}
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	return headers
}
