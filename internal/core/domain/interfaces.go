package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProfileRepository reads member profiles and flips the persisted
// online flag. Everything else about profiles belongs to the platform.
type ProfileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error)
	SetActive(ctx context.Context, profileID uuid.UUID, active bool) error
}

// ConversationRepository handles pairwise threads. GetOrCreate is keyed by
// the normalised unordered member pair: a second call with the same pair
// returns the existing row.
type ConversationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	GetOrCreate(ctx context.Context, a, b uuid.UUID) (*Conversation, error)
	// ListForProfile returns one tagged summary per conversation the
	// profile belongs to, with the other member denormalised and the
	// last-message timestamp populated (zero time when empty).
	ListForProfile(ctx context.Context, profileID uuid.UUID) ([]ChatSummary, error)
}

// GroupRepository handles multi-member rooms.
type GroupRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Group, error)
	Create(ctx context.Context, g *Group) error
	IsMember(ctx context.Context, groupID, profileID uuid.UUID) (bool, error)
	SetLastMessage(ctx context.Context, groupID, messageID uuid.UUID, at time.Time) error
	ListForProfile(ctx context.Context, profileID uuid.UUID) ([]ChatSummary, error)
}

// MessageRepository persists messages. Save runs inside the caller's
// transaction so the broadcast pipeline only sees committed rows.
type MessageRepository interface {
	Save(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)
	MarkDeleted(ctx context.Context, id uuid.UUID) error
	// ListPage returns up to take messages for the channel ordered newest
	// first, strictly older than cursor when supplied.
	ListPage(ctx context.Context, conversationID, groupID *uuid.UUID, cursor *time.Time, take int) ([]Message, error)
}
