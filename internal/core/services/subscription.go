package services

import (
	"context"
	"log/slog"

	"venuelive/internal/core/contracts"
	"venuelive/internal/core/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var subscriptionTracer = otel.Tracer("subscription-service")

// Membership answers whether a profile may use a channel, consulting the
// persisted conversation or group. Shared by the subscription path and the
// message write path so both enforce the same rule.
type Membership struct {
	convs  domain.ConversationRepository
	groups domain.GroupRepository
}

func NewMembership(convs domain.ConversationRepository, groups domain.GroupRepository) *Membership {
	return &Membership{convs: convs, groups: groups}
}

// Check returns nil when the profile belongs to the channel, ErrNotAMember
// when it does not, and a repository error otherwise. Presence keys carry
// no membership: anyone may watch a user's status.
func (m *Membership) Check(ctx context.Context, profileID uuid.UUID, key contracts.SubscriptionKey) error {
	switch key.Kind {
	case contracts.KindConversation:
		conv, err := m.convs.GetByID(ctx, key.ID)
		if err != nil {
			return err
		}
		if !conv.IsMember(profileID) {
			return domain.ErrNotAMember
		}
		return nil
	case contracts.KindGroup:
		ok, err := m.groups.IsMember(ctx, key.ID, profileID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotAMember
		}
		return nil
	case contracts.KindPresence:
		return nil
	default:
		return domain.ErrInvalidChannelKey
	}
}

// SubscriptionService grants and revokes channel subscriptions. A
// subscribe is only registered after the membership check passes, so an
// unauthorized caller never appears in a registry lookup.
type SubscriptionService struct {
	registry   contracts.Registry
	membership *Membership
	log        *slog.Logger
}

func NewSubscriptionService(log *slog.Logger, registry contracts.Registry, membership *Membership) *SubscriptionService {
	return &SubscriptionService{
		registry:   registry,
		membership: membership,
		log:        log,
	}
}

// Subscribe validates membership and registers the connection. Idempotent:
// subscribing twice to the same key is a single registration.
func (s *SubscriptionService) Subscribe(ctx context.Context, c contracts.Client, key contracts.SubscriptionKey) error {
	ctx, span := subscriptionTracer.Start(ctx, "SubscriptionService.Subscribe", trace.WithAttributes(
		attribute.String("channel", key.String()),
		attribute.String("profile_id", c.Identity().ProfileID.String()),
	))
	defer span.End()
	if err := s.membership.Check(ctx, c.Identity().ProfileID, key); err != nil {
		span.RecordError(err)
		s.log.WarnContext(ctx, "subscription - subscribe - rejected", "channel", key.String(), "profile_id", c.Identity().ProfileID, "err", err)
		return err
	}
	s.registry.Add(key, c)
	s.log.InfoContext(ctx, "subscription - subscribe - granted", "channel", key.String(), "client_id", c.ID())
	return nil
}

// Unsubscribe removes the registration. A no-op when the connection never
// held the key.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, c contracts.Client, key contracts.SubscriptionKey) {
	s.registry.Remove(key, c)
	s.log.InfoContext(ctx, "subscription - unsubscribe - removed", "channel", key.String(), "client_id", c.ID())
}
