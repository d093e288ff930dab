package services

import (
	"context"
	"log/slog"

	"venuelive/internal/core/contracts"
	"venuelive/internal/core/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var dispatchTracer = otel.Tracer("dispatch-service")

// Dispatcher pushes committed messages to every connection subscribed to
// the target channel. Invoked only after the durable write. The only error
// it surfaces is a malformed channel key; delivery-level failures are
// absorbed by the registry and logged.
type Dispatcher struct {
	registry contracts.Registry
	log      *slog.Logger
}

func NewDispatcher(log *slog.Logger, registry contracts.Registry) *Dispatcher {
	return &Dispatcher{registry: registry, log: log}
}

// NotifyMessageCreated fans the new message out to channel subscribers and
// nudges their chat lists with the updated summary row.
func (d *Dispatcher) NotifyMessageCreated(ctx context.Context, channel string, view domain.MessageView) error {
	return d.notify(ctx, domain.TypeCreate, channel, view)
}

// NotifyMessageUpdated pushes an edit to channel subscribers.
func (d *Dispatcher) NotifyMessageUpdated(ctx context.Context, channel string, view domain.MessageView) error {
	return d.notify(ctx, domain.TypeUpdate, channel, view)
}

// NotifyMessageDeleted pushes a soft-delete to channel subscribers.
func (d *Dispatcher) NotifyMessageDeleted(ctx context.Context, channel string, view domain.MessageView) error {
	return d.notify(ctx, domain.TypeDelete, channel, view)
}

func (d *Dispatcher) notify(ctx context.Context, tag, channel string, view domain.MessageView) error {
	ctx, span := dispatchTracer.Start(ctx, "Dispatcher.Notify", trace.WithAttributes(
		attribute.String("tag", tag),
		attribute.String("channel", channel),
	))
	defer span.End()

	key, err := contracts.ParseKey(channel)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if key.Kind == contracts.KindPresence {
		return domain.ErrInvalidChannelKey
	}

	d.registry.Broadcast(ctx, key, domain.MessageEvent{Type: tag, Payload: view})
	if tag == domain.TypeCreate {
		d.registry.Broadcast(ctx, key, domain.ChatListEvent{
			Type: domain.TypeChatListUpdate,
			Payload: []domain.ChatSummary{{
				Kind:               domain.ChatKind(key.Kind),
				ID:                 key.ID,
				LastMessageAt:      view.CreatedAt,
				LastMessagePreview: view.Content,
			}},
		})
	}
	d.log.InfoContext(ctx, "dispatch - notify - broadcast complete", "tag", tag, "channel", channel, "message_id", view.ID)
	return nil
}
