package services

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"venuelive/internal/core/contracts"
	"venuelive/internal/core/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var chatTracer = otel.Tracer("chat-service")

// ChatService bootstraps the persisted channels the fan-out layer reads:
// the unique pairwise conversation and the multi-member group.
type ChatService struct {
	convs    domain.ConversationRepository
	groups   domain.GroupRepository
	profiles domain.ProfileRepository
	tx       contracts.TxRunner
	log      *slog.Logger
}

func NewChatService(
	log *slog.Logger,
	convs domain.ConversationRepository,
	groups domain.GroupRepository,
	profiles domain.ProfileRepository,
	tx contracts.TxRunner,
) *ChatService {
	return &ChatService{
		convs:    convs,
		groups:   groups,
		profiles: profiles,
		tx:       tx,
		log:      log,
	}
}

// StartConversation returns the conversation for the caller and the other
// profile, creating it when absent. The unordered pair is normalised
// before the upsert, so two racing identical requests (or the pair in
// either order) resolve to the same row.
func (s *ChatService) StartConversation(ctx context.Context, caller domain.Identity, otherProfileID uuid.UUID) (*domain.Conversation, error) {
	ctx, span := chatTracer.Start(ctx, "ChatService.StartConversation", trace.WithAttributes(
		attribute.String("profile_id", caller.ProfileID.String()),
		attribute.String("other_profile_id", otherProfileID.String()),
	))
	defer span.End()

	if otherProfileID == uuid.Nil || otherProfileID == caller.ProfileID {
		return nil, domain.ErrInvalidProfileID
	}
	if _, err := s.profiles.GetByID(ctx, otherProfileID); err != nil {
		span.RecordError(err)
		return nil, err
	}
	conv, err := s.convs.GetOrCreate(ctx, caller.ProfileID, otherProfileID)
	if err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "chat - start conversation - get or create failed", "profile_id", caller.ProfileID, "other", otherProfileID, "err", err)
		return nil, err
	}
	s.log.InfoContext(ctx, "chat - start conversation - resolved", "conversation_id", conv.ID)
	return conv, nil
}

// CreateGroup creates a group with the caller as a member. The member set
// always includes the caller so the creator can immediately subscribe.
func (s *ChatService) CreateGroup(ctx context.Context, caller domain.Identity, name string, avatarURL *string, memberIDs []uuid.UUID) (*domain.Group, error) {
	ctx, span := chatTracer.Start(ctx, "ChatService.CreateGroup", trace.WithAttributes(
		attribute.String("profile_id", caller.ProfileID.String()),
		attribute.Int("member_count", len(memberIDs)),
	))
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidGroupID
	}
	if !slices.Contains(memberIDs, caller.ProfileID) {
		memberIDs = append(memberIDs, caller.ProfileID)
	}
	group := &domain.Group{
		ID:        uuid.New(),
		Name:      name,
		AvatarURL: avatarURL,
		MemberIDs: memberIDs,
	}
	if err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		return s.groups.Create(txCtx, group)
	}); err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "chat - create group - failed", "name", name, "err", err)
		return nil, err
	}
	s.log.InfoContext(ctx, "chat - create group - created", "group_id", group.ID, "members", len(group.MemberIDs))
	return group, nil
}
