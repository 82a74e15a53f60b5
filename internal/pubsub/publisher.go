package pubsub

import "context"

// Publisher is the outbound message-bus boundary. Publish is
// fire-and-forget from the pipeline's perspective: callers log failures
// and move on, retry policy belongs to the bus.
type Publisher interface {
	// Publish sends a payload to a named channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// PushList appends values to a named list.
	PushList(ctx context.Context, key string, values ...string) error

	// Close releases the underlying connection.
	Close() error
}
