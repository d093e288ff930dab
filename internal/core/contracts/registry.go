package contracts

import (
	"context"
	"strings"

	"venuelive/internal/core/domain"

	"github.com/google/uuid"
)

// KeyKind tags the three channel families.
type KeyKind string

const (
	KindConversation KeyKind = "conversation"
	KindGroup        KeyKind = "group"
	KindPresence     KeyKind = "presence"
)

// SubscriptionKey identifies one broadcast topic: a conversation, a group,
// or a user's presence stream. Distinct logical channels never collide
// because the kind is part of the key.
type SubscriptionKey struct {
	Kind KeyKind
	ID   uuid.UUID
}

func (k SubscriptionKey) String() string {
	return string(k.Kind) + ":" + k.ID.String()
}

func ConversationKey(id uuid.UUID) SubscriptionKey {
	return SubscriptionKey{Kind: KindConversation, ID: id}
}

func GroupKey(id uuid.UUID) SubscriptionKey {
	return SubscriptionKey{Kind: KindGroup, ID: id}
}

func PresenceKey(userID uuid.UUID) SubscriptionKey {
	return SubscriptionKey{Kind: KindPresence, ID: userID}
}

// ParseKey reverses SubscriptionKey.String. A malformed key is a
// programming error on the caller's side.
func ParseKey(s string) (SubscriptionKey, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return SubscriptionKey{}, domain.ErrInvalidChannelKey
	}
	switch KeyKind(kind) {
	case KindConversation, KindGroup, KindPresence:
	default:
		return SubscriptionKey{}, domain.ErrInvalidChannelKey
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return SubscriptionKey{}, domain.ErrInvalidChannelKey
	}
	return SubscriptionKey{Kind: KeyKind(kind), ID: id}, nil
}

// Registry is the in-memory map from subscription keys to live connections.
// It is the single owner of that state; callers mutate it only through
// these operations, all of which are safe under concurrent invocation.
type Registry interface {
	// Track makes the connection addressable by Send before it holds any
	// subscription. Called once at connection time; RemoveEverywhere
	// forgets it.
	Track(c Client)
	// Add registers the client under the key. Adding the same pair twice
	// is a no-op, so a double subscribe never causes duplicate delivery.
	Add(key SubscriptionKey, c Client)
	// Remove drops the pair. Removing an absent pair is a no-op.
	Remove(key SubscriptionKey, c Client)
	// RemoveEverywhere drops the client from every key it holds, in time
	// proportional to the number of keys held. Safe to call repeatedly.
	RemoveEverywhere(c Client)
	// Broadcast delivers the event to every client under the key,
	// skipping clients whose transport is no longer open.
	Broadcast(ctx context.Context, key SubscriptionKey, event domain.Event)
	// Send delivers the event to one client, wherever it is registered.
	Send(ctx context.Context, clientID string, event domain.Event)
}

// Client is the minimal surface the registry needs from a live connection.
type Client interface {
	// ID is the opaque connection handle, unique per connection.
	ID() string
	Identity() domain.Identity
	Send(ctx context.Context, data []byte) error
	Close()
}
