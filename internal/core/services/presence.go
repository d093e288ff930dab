package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"venuelive/internal/core/contracts"
	"venuelive/internal/core/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var presenceTracer = otel.Tracer("presence-service")

// PresenceService tracks which users have at least one live connection.
// The connection sets are reference-counted per user: a user with two
// devices stays active until the last one disconnects. The persisted
// profile flag and the watcher notifications only transition on the
// first connect and the last disconnect.
type PresenceService struct {
	mu    sync.Mutex
	conns map[uuid.UUID]map[string]struct{} // userID -> live connection ids

	profiles domain.ProfileRepository
	registry contracts.Registry
	mirror   contracts.PresenceMirror
	ttl      time.Duration
	log      *slog.Logger
}

func NewPresenceService(
	log *slog.Logger,
	profiles domain.ProfileRepository,
	registry contracts.Registry,
	mirror contracts.PresenceMirror,
	ttl time.Duration,
) *PresenceService {
	return &PresenceService{
		conns:    make(map[uuid.UUID]map[string]struct{}),
		profiles: profiles,
		registry: registry,
		mirror:   mirror,
		ttl:      ttl,
		log:      log,
	}
}

// HandleConnect counts the connection in and, on the user's first live
// connection, persists active=true and notifies watchers.
func (s *PresenceService) HandleConnect(ctx context.Context, identity domain.Identity, c contracts.Client) error {
	ctx, span := presenceTracer.Start(ctx, "PresenceService.HandleConnect", trace.WithAttributes(
		attribute.String("user_id", identity.UserID.String()),
	))
	defer span.End()

	s.mu.Lock()
	set := s.conns[identity.UserID]
	if set == nil {
		set = make(map[string]struct{})
		s.conns[identity.UserID] = set
	}
	_, known := set[c.ID()]
	set[c.ID()] = struct{}{}
	first := !known && len(set) == 1
	s.mu.Unlock()

	if err := s.mirror.CheckIn(ctx, identity.UserID.String(), c.ID(), s.ttl); err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "presence - handle connect - mirror check in failed", "user_id", identity.UserID, "err", err)
	}
	if !first {
		return nil
	}
	if err := s.profiles.SetActive(ctx, identity.ProfileID, true); err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "presence - handle connect - set active failed", "profile_id", identity.ProfileID, "err", err)
		// A failed connect must leave no trace: the connection is counted
		// back out so the user's next connection is the first again.
		s.mu.Lock()
		if set := s.conns[identity.UserID]; set != nil {
			delete(set, c.ID())
			if len(set) == 0 {
				delete(s.conns, identity.UserID)
			}
		}
		s.mu.Unlock()
		if cerr := s.mirror.CheckOut(ctx, identity.UserID.String(), c.ID()); cerr != nil {
			s.log.ErrorContext(ctx, "presence - handle connect - mirror check out failed", "user_id", identity.UserID, "err", cerr)
		}
		return err
	}
	s.notifyWatchers(ctx, identity.UserID, true)
	s.log.InfoContext(ctx, "presence - handle connect - user active", "user_id", identity.UserID)
	return nil
}

// HandleDisconnect counts the connection out. It is idempotent: a second
// call for the same connection is a no-op, so cleanup is safe to run both
// on error paths and on normal close. Only the last connection's
// departure flips the persisted flag and notifies watchers.
func (s *PresenceService) HandleDisconnect(ctx context.Context, identity domain.Identity, c contracts.Client) {
	ctx, span := presenceTracer.Start(ctx, "PresenceService.HandleDisconnect", trace.WithAttributes(
		attribute.String("user_id", identity.UserID.String()),
	))
	defer span.End()

	s.mu.Lock()
	set := s.conns[identity.UserID]
	if set == nil {
		s.mu.Unlock()
		return
	}
	if _, ok := set[c.ID()]; !ok {
		s.mu.Unlock()
		return
	}
	delete(set, c.ID())
	last := len(set) == 0
	if last {
		delete(s.conns, identity.UserID)
	}
	s.mu.Unlock()

	if err := s.mirror.CheckOut(ctx, identity.UserID.String(), c.ID()); err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "presence - handle disconnect - mirror check out failed", "user_id", identity.UserID, "err", err)
	}
	if !last {
		return
	}
	if err := s.profiles.SetActive(ctx, identity.ProfileID, false); err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "presence - handle disconnect - set active failed", "profile_id", identity.ProfileID, "err", err)
	}
	s.notifyWatchers(ctx, identity.UserID, false)
	s.log.InfoContext(ctx, "presence - handle disconnect - user inactive", "user_id", identity.UserID)
}

// Refresh re-arms the mirror TTL for a live connection.
func (s *PresenceService) Refresh(ctx context.Context, identity domain.Identity, c contracts.Client) {
	if err := s.mirror.CheckIn(ctx, identity.UserID.String(), c.ID(), s.ttl); err != nil {
		s.log.ErrorContext(ctx, "presence - refresh - mirror check in failed", "user_id", identity.UserID, "err", err)
	}
}

// Heartbeat refreshes the mirror on an interval until ctx is cancelled.
func (s *PresenceService) Heartbeat(ctx context.Context, identity domain.Identity, c contracts.Client) {
	interval := s.ttl / 2
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx, identity, c)
		}
	}
}

// Active reports whether the user has at least one live connection on
// this gateway.
func (s *PresenceService) Active(userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns[userID]) > 0
}

// Watch registers the connection under the target user's presence stream
// and immediately reports the current state so the watcher does not have
// to wait for the next transition.
func (s *PresenceService) Watch(ctx context.Context, c contracts.Client, targetUserID uuid.UUID) {
	s.registry.Add(contracts.PresenceKey(targetUserID), c)
	s.registry.Send(ctx, c.ID(), domain.UserStatusEvent{
		Type:    domain.TypeUserStatus,
		Payload: domain.PresenceState{UserID: targetUserID, Active: s.Active(targetUserID)},
	})
}

func (s *PresenceService) notifyWatchers(ctx context.Context, userID uuid.UUID, active bool) {
	s.registry.Broadcast(ctx, contracts.PresenceKey(userID), domain.UserStatusEvent{
		Type:    domain.TypeUserStatus,
		Payload: domain.PresenceState{UserID: userID, Active: active},
	})
}
