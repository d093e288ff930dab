package services_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"venuelive/internal/app/registry"
	"venuelive/internal/core/domain"
	"venuelive/internal/core/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPresenceService(t *testing.T) (*services.PresenceService, *registry.Registry, *memProfileRepo, *fakeMirror) {
	t.Helper()
	hub := registry.NewRegistry(slog.Default())
	profiles := newMemProfileRepo()
	mirror := &fakeMirror{}
	svc := services.NewPresenceService(slog.Default(), profiles, hub, mirror, 30*time.Second)
	return svc, hub, profiles, mirror
}

func sameIdentityClients(identity domain.Identity, n int) []*fakeClient {
	out := make([]*fakeClient, n)
	for i := range out {
		c := newFakeClient()
		c.identity = identity
		out[i] = c
	}
	return out
}

func TestFirstConnectionActivatesProfile(t *testing.T) {
	svc, _, profiles, mirror := newPresenceService(t)
	identity := domain.Identity{UserID: uuid.New(), ProfileID: uuid.New()}
	profiles.add(&domain.Profile{ID: identity.ProfileID, UserID: identity.UserID})
	c := newFakeClient()
	c.identity = identity

	require.NoError(t, svc.HandleConnect(context.Background(), identity, c))

	assert.True(t, svc.Active(identity.UserID))
	assert.Equal(t, []bool{true}, profiles.activeLog())
	assert.Len(t, mirror.checkIns, 1)
}

func TestSecondDeviceDoesNotRetransition(t *testing.T) {
	svc, _, profiles, _ := newPresenceService(t)
	identity := domain.Identity{UserID: uuid.New(), ProfileID: uuid.New()}
	profiles.add(&domain.Profile{ID: identity.ProfileID, UserID: identity.UserID})
	clients := sameIdentityClients(identity, 2)

	require.NoError(t, svc.HandleConnect(context.Background(), identity, clients[0]))
	require.NoError(t, svc.HandleConnect(context.Background(), identity, clients[1]))

	// Still one transition: the second device joins an already-active user.
	assert.Equal(t, []bool{true}, profiles.activeLog())

	svc.HandleDisconnect(context.Background(), identity, clients[0])
	assert.True(t, svc.Active(identity.UserID), "one device remains")
	assert.Equal(t, []bool{true}, profiles.activeLog())

	svc.HandleDisconnect(context.Background(), identity, clients[1])
	assert.False(t, svc.Active(identity.UserID))
	assert.Equal(t, []bool{true, false}, profiles.activeLog())
}

func TestFailedConnectLeavesNoTrace(t *testing.T) {
	svc, _, profiles, mirror := newPresenceService(t)
	identity := domain.Identity{UserID: uuid.New(), ProfileID: uuid.New()}
	profiles.add(&domain.Profile{ID: identity.ProfileID, UserID: identity.UserID})

	watcher := newFakeClient()
	svc.Watch(context.Background(), watcher, identity.UserID)

	profiles.failNextSetActive(assert.AnError)
	c := newFakeClient()
	c.identity = identity
	require.Error(t, svc.HandleConnect(context.Background(), identity, c))

	// The rejected connection is counted back out everywhere.
	assert.False(t, svc.Active(identity.UserID))
	assert.Len(t, mirror.checkOuts, 1)

	// The next connection is the first again: the persisted flag flips and
	// watchers see the transition.
	c2 := newFakeClient()
	c2.identity = identity
	require.NoError(t, svc.HandleConnect(context.Background(), identity, c2))
	assert.True(t, svc.Active(identity.UserID))
	assert.Equal(t, []bool{true}, profiles.activeLog())

	frames := watcher.received()
	require.Len(t, frames, 2, "initial state plus the reconnect transition")
	var up domain.UserStatusEvent
	require.NoError(t, json.Unmarshal(frames[1], &up))
	assert.True(t, up.Payload.Active)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	svc, _, profiles, mirror := newPresenceService(t)
	identity := domain.Identity{UserID: uuid.New(), ProfileID: uuid.New()}
	profiles.add(&domain.Profile{ID: identity.ProfileID, UserID: identity.UserID})
	c := newFakeClient()
	c.identity = identity

	require.NoError(t, svc.HandleConnect(context.Background(), identity, c))
	svc.HandleDisconnect(context.Background(), identity, c)
	svc.HandleDisconnect(context.Background(), identity, c)

	assert.Equal(t, []bool{true, false}, profiles.activeLog())
	assert.Len(t, mirror.checkOuts, 1)
}

func TestDisconnectOfUnknownConnectionIsNoop(t *testing.T) {
	svc, _, profiles, _ := newPresenceService(t)
	identity := domain.Identity{UserID: uuid.New(), ProfileID: uuid.New()}
	c := newFakeClient()
	c.identity = identity

	svc.HandleDisconnect(context.Background(), identity, c)

	assert.Empty(t, profiles.activeLog())
}

func TestWatchersSeeTransitions(t *testing.T) {
	svc, _, profiles, _ := newPresenceService(t)
	target := domain.Identity{UserID: uuid.New(), ProfileID: uuid.New()}
	profiles.add(&domain.Profile{ID: target.ProfileID, UserID: target.UserID})

	watcher := newFakeClient()
	svc.Watch(context.Background(), watcher, target.UserID)

	// Watch replies immediately with the current (inactive) state.
	require.Len(t, watcher.received(), 1)
	var initial domain.UserStatusEvent
	require.NoError(t, json.Unmarshal(watcher.received()[0], &initial))
	assert.Equal(t, domain.TypeUserStatus, initial.Type)
	assert.False(t, initial.Payload.Active)

	targetConn := newFakeClient()
	targetConn.identity = target
	require.NoError(t, svc.HandleConnect(context.Background(), target, targetConn))
	svc.HandleDisconnect(context.Background(), target, targetConn)

	frames := watcher.received()
	require.Len(t, frames, 3)
	var up, down domain.UserStatusEvent
	require.NoError(t, json.Unmarshal(frames[1], &up))
	require.NoError(t, json.Unmarshal(frames[2], &down))
	assert.True(t, up.Payload.Active)
	assert.Equal(t, target.UserID, up.Payload.UserID)
	assert.False(t, down.Payload.Active)
}

func TestRefreshReArmsMirror(t *testing.T) {
	svc, _, profiles, mirror := newPresenceService(t)
	identity := domain.Identity{UserID: uuid.New(), ProfileID: uuid.New()}
	profiles.add(&domain.Profile{ID: identity.ProfileID, UserID: identity.UserID})
	c := newFakeClient()
	c.identity = identity

	require.NoError(t, svc.HandleConnect(context.Background(), identity, c))
	svc.Refresh(context.Background(), identity, c)

	assert.Len(t, mirror.checkIns, 2)
	assert.Equal(t, []bool{true}, profiles.activeLog(), "refresh never transitions")
}
