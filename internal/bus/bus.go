// Package bus provides event bus implementations for usage and ingestion
// events consumed by downstream billing and analytics.
package bus

import (
	"context"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "usage.recorded").
	Type string `json:"type"`

	// Source is the service that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix seconds.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links the event to the originating request.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// Topics for different event types.
const (
	// TopicUsageRecorded carries per-request usage records for billing.
	TopicUsageRecorded = "usage.recorded"

	// TopicDocumentIngested signals a completed document ingestion.
	TopicDocumentIngested = "ingest.document.ingested"
)
