package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/grayleopard/safeswap/pkg/tracing"
)

// Config holds Kafka configuration
type Config struct {
	Brokers      []string
	ListingTopic string
}

// ParseConfig parses a comma-separated broker string
func ParseConfig(brokers string, listingTopic string) Config {
	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	return Config{
		Brokers:      brokerList,
		ListingTopic: listingTopic,
	}
}

// Producer publishes listing lifecycle events to Kafka
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.ListingTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// Allow Kafka to auto-create the topic in dev environments when it doesn't exist yet.
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.ListingTopic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Listing event types
const (
	EventListingCreated = "listing.created"
	EventListingBlocked = "listing.blocked"
)

// ListingEventMessage is a lifecycle event for a listing submission. Blocked
// submissions are published too so downstream moderation tooling can see
// which recalls are tripping sellers up.
type ListingEventMessage struct {
	Type        string    `json:"type"` // "listing.created" | "listing.blocked"
	ListingID   string    `json:"listing_id,omitempty"`
	OwnerID     string    `json:"owner_id"`
	Category    string    `json:"category"`
	HasRecall   bool      `json:"has_recall"`
	RecallID    string    `json:"recall_id,omitempty"`
	RecallNotes string    `json:"recall_notes,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	// Tracing
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// PublishListingEvent publishes a listing lifecycle event
func (p *Producer) PublishListingEvent(ctx context.Context, evt *ListingEventMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishListingEvent")
	defer span.End()

	if evt == nil {
		return fmt.Errorf("listing event is nil")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("owner_id", evt.OwnerID),
		attribute.String("type", evt.Type),
	)

	evt.TraceID = tracing.GetTraceID(ctx)
	evt.SpanID = tracing.GetSpanID(ctx)

	data, err := json.Marshal(evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal listing event")
		return fmt.Errorf("failed to marshal listing event: %w", err)
	}

	// Key on the owner so a seller's events stay ordered within a partition
	key := evt.OwnerID

	headers := []kafka.Header{
		{Key: "owner_id", Value: []byte(evt.OwnerID)},
		{Key: "type", Value: []byte(evt.Type)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	if tracestate := tracing.GetTraceState(ctx); tracestate != "" {
		headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(tracestate)})
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish listing event to Kafka topic %s", p.topic)
		return err
	}

	span.SetStatus(codes.Ok, "message published")
	p.logger.WithContext(ctx).Debugf("Published listing event to Kafka: type=%s listing=%s trace=%s",
		evt.Type, evt.ListingID, evt.TraceID)

	return nil
}

// Stats returns producer statistics
func (p *Producer) Stats() kafka.WriterStats {
	return p.writer.Stats()
}
