package kafka

import (
	"context"
	_ "embed"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"fadedreams/repairshop/repair-service/domain"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/hamba/avro/v2"
	"github.com/riferrei/srclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:embed repair_event.avsc
var repairEventSchema string

// RepairEvent mirrors the Avro schema
type RepairEvent struct {
	EventID    string    `avro:"event_id"`
	EventType  string    `avro:"event_type"`
	RepairID   string    `avro:"repair_id"`
	UserID     string    `avro:"user_id"`
	AssignedTo string    `avro:"assigned_to"`
	WorkshopID string    `avro:"workshop_id"`
	Status     string    `avro:"status"`
	TotalCost  string    `avro:"total_cost"`
	OccurredAt time.Time `avro:"occurred_at"`
}

func newRepairEvent(event *domain.OutboxEvent) RepairEvent {
	return RepairEvent{
		EventID:    event.ID,
		EventType:  event.EventType,
		RepairID:   event.Event.RepairID,
		UserID:     event.Event.UserID,
		AssignedTo: event.Event.AssignedTo,
		WorkshopID: event.Event.WorkshopID,
		Status:     event.Event.Status,
		TotalCost:  event.Event.TotalCost,
		OccurredAt: event.Event.OccurredAt.UTC().Truncate(time.Millisecond),
	}
}

// Encoder serializes outbox events in the Confluent wire format: a zero
// magic byte, the big-endian schema id, then the Avro body.
type Encoder struct {
	schema   avro.Schema
	schemaID int
}

func NewEncoder(schemaID int) (*Encoder, error) {
	schema, err := avro.Parse(repairEventSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return &Encoder{schema: schema, schemaID: schemaID}, nil
}

func (e *Encoder) Encode(event *domain.OutboxEvent) ([]byte, error) {
	body, err := avro.Marshal(e.schema, newRepairEvent(event))
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}
	payload := make([]byte, 5, 5+len(body))
	binary.BigEndian.PutUint32(payload[1:5], uint32(e.schemaID))
	return append(payload, body...), nil
}

// Producer publishes outbox events to one topic
type Producer struct {
	kafkaProducer *kafka.Producer
	encoder       *Encoder
	topic         string
	logger        *slog.Logger
	tracer        trace.Tracer
}

// NewProducer connects to Kafka and registers the event schema under the
// topic's value subject
func NewProducer(bootstrapServers, schemaRegistryURL, topic string, logger *slog.Logger) (*Producer, error) {
	config := &kafka.ConfigMap{
		"bootstrap.servers":  bootstrapServers,
		"compression.type":   "snappy",
		"enable.idempotence": true,
		"acks":               "all",
	}
	p, err := kafka.NewProducer(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	srClient := srclient.CreateSchemaRegistryClient(schemaRegistryURL)
	schemaObj, err := srClient.CreateSchema(topic+"-value", repairEventSchema, srclient.Avro)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to register schema: %w", err)
	}
	logger.Info("Schema registered", "schemaID", schemaObj.ID(), "subject", topic+"-value")

	encoder, err := NewEncoder(schemaObj.ID())
	if err != nil {
		p.Close()
		return nil, err
	}
	return &Producer{
		kafkaProducer: p,
		encoder:       encoder,
		topic:         topic,
		logger:        logger,
		tracer:        otel.Tracer("repair-service"),
	}, nil
}

// Publish sends an outbox event keyed by repair id and waits for the
// delivery report
func (p *Producer) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	_, span := p.tracer.Start(ctx, "PublishOutboxEvent")
	defer span.End()
	span.SetAttributes(
		attribute.String("eventID", event.ID),
		attribute.String("eventType", event.EventType),
	)

	payload, err := p.encoder.Encode(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to encode event")
		return err
	}

	deliveryChan := make(chan kafka.Event, 1)
	err = p.kafkaProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.Event.RepairID),
		Value:          payload,
		Headers:        []kafka.Header{{Key: "event_type", Value: []byte(event.EventType)}},
	}, deliveryChan)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to produce message")
		return fmt.Errorf("failed to produce message: %w", err)
	}

	var m *kafka.Message
	select {
	case e := <-deliveryChan:
		m = e.(*kafka.Message)
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "Delivery wait aborted")
		return ctx.Err()
	}
	if m.TopicPartition.Error != nil {
		span.RecordError(m.TopicPartition.Error)
		span.SetStatus(codes.Error, "Delivery failed")
		return fmt.Errorf("delivery failed: %w", m.TopicPartition.Error)
	}
	span.SetAttributes(
		attribute.String("topic", *m.TopicPartition.Topic),
		attribute.Int("partition", int(m.TopicPartition.Partition)),
		attribute.Int64("offset", int64(m.TopicPartition.Offset)),
	)
	p.logger.Debug("Published outbox event",
		"eventID", event.ID,
		"topic", *m.TopicPartition.Topic,
		"partition", m.TopicPartition.Partition,
		"offset", m.TopicPartition.Offset)
	return nil
}

// Close flushes pending messages and shuts down the Kafka producer
func (p *Producer) Close() {
	p.logger.Info("Closing Kafka producer")
	p.kafkaProducer.Flush(5000)
	p.kafkaProducer.Close()
}
