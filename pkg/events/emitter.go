// Package events defines the consolidation event schema and the publishing
// plumbing around it. Mutating services buffer events in an Outbox and only
// flush once the mutation succeeds.
package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Emitter publishes events to Kafka.
type Emitter struct {
	producer *kafka.Producer
	logger   *zap.Logger
}

// NewEmitter creates a Kafka-backed event publisher.
func NewEmitter(producer *kafka.Producer, logger *zap.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// Publish serializes the event and writes it to the event topic. The event key
// keeps all events for one canonical entity on the same partition.
func (e *Emitter) Publish(ctx context.Context, event Event) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.Publish")
	defer span.End()

	base := event.Base()

	value, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("Failed to marshal event",
			zap.String("event_type", string(base.EventType)),
			zap.Error(err))
		return err
	}

	headers := []kafka.Header{
		{Key: "event_type", Value: string(base.EventType)},
		{Key: "schema_version", Value: base.SchemaVersion},
		{Key: "tenant_id", Value: base.TenantID},
	}
	if base.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: "correlation_id", Value: base.CorrelationID})
	}
	if traceID := tracing.TraceID(ctx); traceID != "" {
		headers = append(headers, kafka.Header{Key: "trace_id", Value: traceID})
	}

	if err := e.producer.Publish(ctx, event.Key(), value, headers...); err != nil {
		return err
	}

	e.logger.Debug("Emitted event",
		zap.String("event_type", string(base.EventType)),
		zap.String("tenant_id", base.TenantID))

	return nil
}
