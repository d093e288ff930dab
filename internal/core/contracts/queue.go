package contracts

import "context"

// BroadcastQueue carries committed-message broadcast jobs from the write
// path to the per-channel fan-out workers. Entries are appended only after
// the durable write, so a consumer never sees a message that a failure
// could roll back.
type BroadcastQueue interface {
	// Publish appends a job to the channel's stream.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe starts a consumer-group reader for the channel stream and
	// invokes handler for each entry. It returns once the reader goroutine
	// is running; the reader stops when ctx is cancelled.
	Subscribe(ctx context.Context, channel, group string, handler func(ctx context.Context, entryID string, data []byte) error) error
	// Ack marks an entry as processed for the consumer group.
	Ack(ctx context.Context, channel, group, entryID string) error
	// DeleteEntry removes a processed entry from the stream.
	DeleteEntry(ctx context.Context, channel, entryID string) error
	// DeleteStream removes the whole channel stream.
	DeleteStream(ctx context.Context, channel string) error
}
