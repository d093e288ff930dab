package domain

import (
	"time"

	"github.com/google/uuid"
)

// Identity is the authenticated caller, derived once from the bearer token
// at connection time and immutable for the life of the connection.
type Identity struct {
	UserID    uuid.UUID
	ProfileID uuid.UUID
}

// Profile is the member-facing identity owned by the surrounding platform.
// This subsystem reads it for chat-list denormalisation and writes only the
// Active flag.
type Profile struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	AvatarURL *string
	Active    bool
	CreatedAt time.Time
}

// Conversation is a pairwise thread. MemberOneID sorts lexicographically
// before MemberTwoID so an unordered pair maps to exactly one row.
type Conversation struct {
	ID          uuid.UUID
	MemberOneID uuid.UUID
	MemberTwoID uuid.UUID
	CreatedAt   time.Time
}

// NormalizePair orders two profile ids into the canonical (one, two) slot
// assignment used by the uniqueness index.
func NormalizePair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if b.String() < a.String() {
		return b, a
	}
	return a, b
}

// IsMember reports whether the profile belongs to the conversation.
func (c *Conversation) IsMember(profileID uuid.UUID) bool {
	return c.MemberOneID == profileID || c.MemberTwoID == profileID
}

// Group is a multi-member room. LastMessageID/LastMessageAt are a
// denormalised reference to the most recent message for chat-list ordering.
type Group struct {
	ID            uuid.UUID
	Name          string
	AvatarURL     *string
	MemberIDs     []uuid.UUID
	LastMessageID *uuid.UUID
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

// Message belongs to exactly one of ConversationID or GroupID, never both.
// Immutable after creation except for the Deleted flag.
type Message struct {
	ID             uuid.UUID
	ConversationID *uuid.UUID
	GroupID        *uuid.UUID
	SenderID       uuid.UUID
	Content        string
	FileURL        *string
	Deleted        bool
	CreatedAt      time.Time
}

// ChatKind discriminates the two feed sources in a chat summary.
type ChatKind string

const (
	KindConversation ChatKind = "conversation"
	KindGroup        ChatKind = "group"
)

// ChatSummary is one row of the merged, time-ordered chat list. For
// conversations Name/AvatarURL describe the other member; for groups the
// group itself. LastMessageAt is the zero time when no message exists yet.
type ChatSummary struct {
	Kind               ChatKind    `json:"kind"`
	ID                 uuid.UUID   `json:"id"`
	Name               string      `json:"name"`
	AvatarURL          *string     `json:"avatar_url,omitempty"`
	MemberIDs          []uuid.UUID `json:"member_ids,omitempty"`
	LastMessageAt      time.Time   `json:"last_message_at"`
	LastMessagePreview string      `json:"last_message_preview,omitempty"`
}
