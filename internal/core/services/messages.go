package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"venuelive/internal/core/contracts"
	"venuelive/internal/core/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var messageTracer = otel.Tracer("message-service")

// MessageService owns the message write path. A message is persisted in a
// transaction first; only after commit is a broadcast job appended to the
// channel stream, so the fan-out never sees a row that a failure could
// roll back. Delivery stays best-effort: a committed message whose job is
// never consumed is recovered by clients through the history fetch.
type MessageService struct {
	repo       domain.MessageRepository
	groups     domain.GroupRepository
	membership *Membership
	queue      contracts.BroadcastQueue
	tx         contracts.TxRunner
	log        *slog.Logger
}

func NewMessageService(
	log *slog.Logger,
	repo domain.MessageRepository,
	groups domain.GroupRepository,
	membership *Membership,
	queue contracts.BroadcastQueue,
	tx contracts.TxRunner,
) *MessageService {
	return &MessageService{
		repo:       repo,
		groups:     groups,
		membership: membership,
		queue:      queue,
		tx:         tx,
		log:        log,
	}
}

// CreateMessage validates the channel and sender membership, durably
// writes the message, then enqueues the post-commit broadcast job.
func (s *MessageService) CreateMessage(
	ctx context.Context,
	sender domain.Identity,
	key contracts.SubscriptionKey,
	content string,
	fileURL *string,
) (*domain.Message, error) {
	ctx, span := messageTracer.Start(ctx, "MessageService.CreateMessage", trace.WithAttributes(
		attribute.String("channel", key.String()),
		attribute.String("sender_id", sender.ProfileID.String()),
	))
	defer span.End()

	if key.Kind != contracts.KindConversation && key.Kind != contracts.KindGroup {
		return nil, domain.ErrInvalidChannelKey
	}
	if strings.TrimSpace(content) == "" && fileURL == nil {
		return nil, domain.ErrInvalidMessage
	}
	if err := s.membership.Check(ctx, sender.ProfileID, key); err != nil {
		span.RecordError(err)
		s.log.WarnContext(ctx, "messages - create - membership rejected", "channel", key.String(), "sender_id", sender.ProfileID, "err", err)
		return nil, err
	}

	msg := &domain.Message{
		ID:        uuid.New(),
		SenderID:  sender.ProfileID,
		Content:   content,
		FileURL:   fileURL,
		CreatedAt: time.Now().UTC(),
	}
	channelID := key.ID
	switch key.Kind {
	case contracts.KindConversation:
		msg.ConversationID = &channelID
	case contracts.KindGroup:
		msg.GroupID = &channelID
	}

	if err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Save(txCtx, msg); err != nil {
			return err
		}
		if msg.GroupID != nil {
			return s.groups.SetLastMessage(txCtx, *msg.GroupID, msg.ID, msg.CreatedAt)
		}
		return nil
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		s.log.ErrorContext(ctx, "messages - create - save failed", "channel", key.String(), "err", err)
		return nil, err
	}
	s.log.InfoContext(ctx, "messages - create - saved", "channel", key.String(), "message_id", msg.ID)

	s.enqueue(ctx, domain.TypeCreate, key, msg)
	return msg, nil
}

// DeleteMessage flips the soft-delete flag (sender only) and enqueues the
// delete push.
func (s *MessageService) DeleteMessage(ctx context.Context, caller domain.Identity, messageID uuid.UUID) (*domain.Message, error) {
	ctx, span := messageTracer.Start(ctx, "MessageService.DeleteMessage", trace.WithAttributes(
		attribute.String("message_id", messageID.String()),
	))
	defer span.End()

	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if msg.SenderID != caller.ProfileID {
		return nil, domain.ErrNotSender
	}
	if err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		return s.repo.MarkDeleted(txCtx, messageID)
	}); err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "messages - delete - mark deleted failed", "message_id", messageID, "err", err)
		return nil, err
	}
	msg.Deleted = true
	msg.Content = ""
	s.enqueue(ctx, domain.TypeDelete, channelOf(msg), msg)
	return msg, nil
}

// History returns one recency-ordered page for the channel, gated by the
// same membership rule as subscriptions.
func (s *MessageService) History(
	ctx context.Context,
	caller domain.Identity,
	key contracts.SubscriptionKey,
	cursor *time.Time,
	take int,
) ([]domain.Message, error) {
	ctx, span := messageTracer.Start(ctx, "MessageService.History", trace.WithAttributes(
		attribute.String("channel", key.String()),
	))
	defer span.End()

	if key.Kind != contracts.KindConversation && key.Kind != contracts.KindGroup {
		return nil, domain.ErrInvalidChannelKey
	}
	if err := s.membership.Check(ctx, caller.ProfileID, key); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if take <= 0 {
		take = 20
	}
	channelID := key.ID
	var convID, groupID *uuid.UUID
	if key.Kind == contracts.KindConversation {
		convID = &channelID
	} else {
		groupID = &channelID
	}
	msgs, err := s.repo.ListPage(ctx, convID, groupID, cursor, take)
	if err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "messages - history - list page failed", "channel", key.String(), "err", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("message_count", len(msgs)))
	return msgs, nil
}

func (s *MessageService) enqueue(ctx context.Context, tag string, key contracts.SubscriptionKey, msg *domain.Message) {
	job := domain.BroadcastJob{
		Tag:     tag,
		Channel: key.String(),
		Message: domain.NewMessageView(msg),
	}
	raw, _ := json.Marshal(job)
	if err := s.queue.Publish(ctx, key.String(), raw); err != nil {
		// The write is committed; live delivery is best-effort.
		s.log.ErrorContext(ctx, "messages - enqueue - publish failed", "channel", key.String(), "message_id", msg.ID, "err", err)
	}
}

func channelOf(msg *domain.Message) contracts.SubscriptionKey {
	if msg.ConversationID != nil {
		return contracts.ConversationKey(*msg.ConversationID)
	}
	return contracts.GroupKey(*msg.GroupID)
}
