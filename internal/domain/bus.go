package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `envconfig:"HARRIER_BUS_TYPE"`

	// Channel settings (Community tier)
	ChannelBufferSize int `envconfig:"HARRIER_BUS_CHANNEL_BUFFER_SIZE"`

	// NATS settings (Pro tier)
	NATSUrl           string `envconfig:"HARRIER_BUS_NATS_URL"`
	NATSToken         string `envconfig:"HARRIER_BUS_NATS_TOKEN"`
	NATSMaxReconnects int    `envconfig:"HARRIER_BUS_NATS_MAX_RECONNECTS"`
	NATSReconnectWait int    `envconfig:"HARRIER_BUS_NATS_RECONNECT_WAIT"` // seconds
}

// Standard topic names for the detection pipeline.
const (
	TopicBatchSubmitted     = "harrier.batch.submitted"
	TopicDetectionCompleted = "harrier.detection.completed"
	TopicSuspicious         = "harrier.alert.suspicious"
	TopicModelTrained       = "harrier.model.trained"
)

// BatchSubmittedEvent carries an asynchronous detection request.
type BatchSubmittedEvent struct {
	BatchID      string        `json:"batch_id"`
	Transactions []Transaction `json:"transactions"`
}

// DetectionCompletedEvent announces a finished detection run.
type DetectionCompletedEvent struct {
	BatchID        string           `json:"batch_id,omitempty"`
	DetectionRunID string           `json:"detection_run_id"`
	Summary        DetectionSummary `json:"summary"`
}
