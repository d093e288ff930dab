package registry_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"venuelive/internal/app/registry"
	"venuelive/internal/core/contracts"
	"venuelive/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

type fakeClient struct {
	id       string
	identity domain.Identity

	mu     sync.Mutex
	recv   [][]byte
	closed bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		id: uuid.NewString(),
		identity: domain.Identity{
			UserID:    uuid.New(),
			ProfileID: uuid.New(),
		},
	}
}

func (c *fakeClient) ID() string                { return c.id }
func (c *fakeClient) Identity() domain.Identity { return c.identity }

func (c *fakeClient) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("transport closed")
	}
	c.recv = append(c.recv, data)
	return nil
}

func (c *fakeClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeClient) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.recv))
	copy(out, c.recv)
	return out
}

func testEvent(content string) domain.Event {
	return domain.MessageEvent{
		Type:    domain.TypeCreate,
		Payload: domain.MessageView{ID: uuid.New(), Content: content},
	}
}

func TestAddIsIdempotent(t *testing.T) {
	hub := registry.NewRegistry(slog.Default())
	c := newFakeClient()
	key := contracts.ConversationKey(uuid.New())

	hub.Add(key, c)
	hub.Add(key, c)
	hub.Broadcast(context.Background(), key, testEvent("hello"))

	assert.Len(t, c.received(), 1, "double add must not cause duplicate delivery")
}

func TestRemoveEverywhereIsComplete(t *testing.T) {
	hub := registry.NewRegistry(slog.Default())
	c := newFakeClient()
	keys := []contracts.SubscriptionKey{
		contracts.ConversationKey(uuid.New()),
		contracts.GroupKey(uuid.New()),
		contracts.PresenceKey(uuid.New()),
	}
	for _, k := range keys {
		hub.Add(k, c)
	}

	hub.RemoveEverywhere(c)
	for _, k := range keys {
		hub.Broadcast(context.Background(), k, testEvent("after cleanup"))
	}
	assert.Empty(t, c.received(), "no broadcast may reach a removed connection")

	// Cleanup must be safe to run twice.
	hub.RemoveEverywhere(c)
}

func TestNoCrossDelivery(t *testing.T) {
	hub := registry.NewRegistry(slog.Default())
	a := newFakeClient()
	b := newFakeClient()
	keyA := contracts.ConversationKey(uuid.New())
	keyB := contracts.ConversationKey(uuid.New())
	hub.Add(keyA, a)
	hub.Add(keyB, b)

	hub.Broadcast(context.Background(), keyA, testEvent("only for A"))

	assert.Len(t, a.received(), 1)
	assert.Empty(t, b.received(), "a message for conversation A must never reach a connection subscribed only to B")
}

func TestBroadcastSkipsClosedConnections(t *testing.T) {
	hub := registry.NewRegistry(slog.Default())
	open := newFakeClient()
	closed := newFakeClient()
	key := contracts.GroupKey(uuid.New())
	hub.Add(key, open)
	hub.Add(key, closed)
	closed.Close()

	hub.Broadcast(context.Background(), key, testEvent("still delivered"))

	require.Len(t, open.received(), 1)
	assert.Empty(t, closed.received())
}

func TestRemoveAbsentPairIsNoop(t *testing.T) {
	hub := registry.NewRegistry(slog.Default())
	c := newFakeClient()
	key := contracts.ConversationKey(uuid.New())

	hub.Remove(key, c)
	hub.Add(key, c)
	hub.Remove(contracts.GroupKey(uuid.New()), c)
	hub.Broadcast(context.Background(), key, testEvent("still subscribed"))

	assert.Len(t, c.received(), 1)
}

func TestSendTargetsOneConnection(t *testing.T) {
	hub := registry.NewRegistry(slog.Default())
	a := newFakeClient()
	b := newFakeClient()
	key := contracts.GroupKey(uuid.New())
	hub.Add(key, a)
	hub.Add(key, b)

	hub.Send(context.Background(), a.ID(), testEvent("just you"))
	hub.Send(context.Background(), "unknown-client", testEvent("dropped"))

	assert.Len(t, a.received(), 1)
	assert.Empty(t, b.received())
}

func TestBroadcastPayloadIsTagged(t *testing.T) {
	hub := registry.NewRegistry(slog.Default())
	c := newFakeClient()
	key := contracts.ConversationKey(uuid.New())
	hub.Add(key, c)

	hub.Broadcast(context.Background(), key, testEvent("payload"))

	frames := c.received()
	require.Len(t, frames, 1)
	var decoded struct {
		Type    string `json:"type"`
		Payload struct {
			Content string `json:"content"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(frames[0], &decoded))
	assert.Equal(t, domain.TypeCreate, decoded.Type)
	assert.Equal(t, "payload", decoded.Payload.Content)
}

func TestWorkerLifecycle(t *testing.T) {
	hub := registry.NewRegistry(slog.Default())

	var mu sync.Mutex
	started := make(map[string]context.Context)
	hub.RunWorker(func(ctx context.Context, channel string) error {
		mu.Lock()
		started[channel] = ctx
		mu.Unlock()
		return nil
	})

	convKey := contracts.ConversationKey(uuid.New())
	presKey := contracts.PresenceKey(uuid.New())
	a := newFakeClient()
	b := newFakeClient()

	hub.Add(convKey, a)
	hub.Add(convKey, b)
	hub.Add(presKey, a)

	// Worker start is asynchronous only in the sense of running in its
	// own goroutine; the registration happens under the registry lock.
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		_, ok := started[convKey.String()]
		return ok
	}, waitFor, tick, "conversation channel must get a worker")

	mu.Lock()
	_, presenceWorker := started[presKey.String()]
	mu.Unlock()
	assert.False(t, presenceWorker, "presence channels carry no stream worker")

	hub.Remove(convKey, a)
	mu.Lock()
	ctx := started[convKey.String()]
	mu.Unlock()
	assert.NoError(t, ctx.Err(), "worker must keep running while subscribers remain")

	hub.Remove(convKey, b)
	assert.Eventually(t, func() bool {
		return ctx.Err() != nil
	}, waitFor, tick, "worker must be cancelled when the last subscriber leaves")
}

func TestConcurrentRegistryAccess(t *testing.T) {
	hub := registry.NewRegistry(slog.Default())
	key := contracts.ConversationKey(uuid.New())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newFakeClient()
			hub.Add(key, c)
			hub.Broadcast(context.Background(), key, testEvent("racy"))
			hub.RemoveEverywhere(c)
		}()
	}
	wg.Wait()

	// All clients removed themselves; nothing may be delivered now.
	late := newFakeClient()
	hub.Add(key, late)
	hub.Broadcast(context.Background(), key, testEvent("final"))
	assert.Len(t, late.received(), 1)
}

func TestTrackMakesClientAddressableBeforeSubscribe(t *testing.T) {
	hub := registry.NewRegistry(slog.Default())
	c := newFakeClient()

	hub.Send(context.Background(), c.ID(), testEvent("early"))
	assert.Empty(t, c.received(), "untracked client is unknown")

	hub.Track(c)
	hub.Send(context.Background(), c.ID(), testEvent("welcome"))
	require.Len(t, c.received(), 1)

	hub.RemoveEverywhere(c)
	hub.Send(context.Background(), c.ID(), testEvent("gone"))
	assert.Len(t, c.received(), 1, "removed client receives nothing")
}
