package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Event types published on the chatbot lifecycle topic.
const (
	EventChatbotProvisioned   = "chatbot.provisioned"
	EventChatbotStateChanged  = "chatbot.state_changed"
	EventChatbotDeprovisioned = "chatbot.deprovisioned"
)

// ProducerConfig configures the lifecycle event producer
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	MaxAttempts  int
}

// ChatbotEvent is the message published for chatbot lifecycle changes.
// Consumers key off Type; the rest of the payload is the same for all types.
type ChatbotEvent struct {
	Type       string          `json:"type"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	ChatbotID  uuid.UUID       `json:"chatbot_id"`
	Platform   models.Platform `json:"platform"`
	WorkflowID *string         `json:"workflow_id,omitempty"`
	Active     bool            `json:"active"`
	Timestamp  time.Time       `json:"timestamp"`
	TraceID    string          `json:"trace_id,omitempty"`
}

// Producer publishes chatbot lifecycle events to Kafka
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	config ProducerConfig
}

// NewProducer creates a new lifecycle event producer
func NewProducer(config ProducerConfig, logger ectologger.Logger) (*Producer, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	// Hash by key so a tenant's events stay ordered within a partition.
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           config.BatchTimeout,
		MaxAttempts:            config.MaxAttempts,
		WriteTimeout:           config.WriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		config: config,
	}, nil
}

// Publish publishes a lifecycle event. The event's trace ID is filled from the
// context when unset.
func (p *Producer) Publish(ctx context.Context, event *ChatbotEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.TraceID == "" {
		event.TraceID = tracing.GetTraceID(ctx)
	}

	data, err := json.Marshal(event)
	if err != nil {
		metrics.RecordEventPublished(event.Type, "error")
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	key := fmt.Sprintf("%s:%s", event.TenantID, event.Platform)

	headers := []kafka.Header{
		{Key: "tenant_id", Value: []byte(event.TenantID.String())},
		{Key: "event_type", Value: []byte(event.Type)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}

	msg := kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
		Time:    event.Timestamp,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordEventPublished(event.Type, "error")
		return fmt.Errorf("failed to publish event: %w", err)
	}

	metrics.RecordEventPublished(event.Type, "ok")
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.Type,
		"chatbot_id": event.ChatbotID,
		"platform":   event.Platform,
	}).Debug("Published chatbot lifecycle event")
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	p.logger.Info("Kafka producer closed")
	return nil
}

// Stats returns producer statistics
func (p *Producer) Stats() kafka.WriterStats {
	return p.writer.Stats()
}
