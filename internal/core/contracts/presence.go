package contracts

import (
	"context"
	"time"
)

// PresenceMirror is the out-of-process reflection of connection liveness,
// keyed per user with one member per connection. The in-process reference
// count stays the source of truth for a single gateway; the mirror exists
// so a multi-process deployment can read liveness without it.
type PresenceMirror interface {
	// CheckIn records the connection as live for the user, refreshed on a
	// TTL so crashed gateways age out.
	CheckIn(ctx context.Context, userID, connID string, ttl time.Duration) error
	// CheckOut removes one connection.
	CheckOut(ctx context.Context, userID, connID string) error
	// LiveConnections returns the connection ids still within the TTL.
	LiveConnections(ctx context.Context, userID string) ([]string, error)
}
