package jetstream

import (
	"context"

	"github.com/nats-io/nats.go"
)

// Publisher publishes JSON payloads with the service's standard headers.
type Publisher interface {
	// PublishJSON marshals payload and publishes it. A non-empty msgID becomes
	// the Nats-Msg-Id header so JetStream drops duplicates.
	PublishJSON(ctx context.Context, subject, msgID string, payload interface{}) error
}

// ClientInterface defines the interface for the JetStream client
// This allows for easy mocking in tests
type ClientInterface interface {
	Publisher

	// SetupStream ensures the stream exists with the given configuration
	SetupStream(ctx context.Context, streamConfig *nats.StreamConfig) error

	// SetupConsumer ensures the consumer exists with the given configuration for a specific stream
	SetupConsumer(ctx context.Context, streamName string, consumerConfig *nats.ConsumerConfig) error

	// SubscribePush creates a push-based consumer subscription
	SubscribePush(subject, consumer, group, stream string, handler nats.MsgHandler) (*nats.Subscription, error)

	// SubscribePull creates a pull-based consumer subscription
	// Requires the streamName for binding
	SubscribePull(streamName, subject, consumer string) (*nats.Subscription, error)

	// Publish publishes a message to a subject with optional headers
	Publish(subject string, data []byte, headers map[string]string) error

	// IsConnected reports whether the NATS connection is up
	IsConnected() bool

	// Close closes the NATS connection
	Close()

	// NatsConn returns the underlying *nats.Conn
	NatsConn() *nats.Conn
}
