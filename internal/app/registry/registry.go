package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"venuelive/internal/core/contracts"
	"venuelive/internal/core/domain"
)

// Registry maps subscription keys to the set of live connections holding
// them. It additionally tracks, per connection, the set of keys held, so
// disconnect cleanup costs only the keys that connection touched.
type Registry struct {
	mu       sync.RWMutex
	channels map[contracts.SubscriptionKey]map[string]contracts.Client
	held     map[string]map[contracts.SubscriptionKey]struct{}
	clients  map[string]contracts.Client
	workers  map[contracts.SubscriptionKey]context.CancelFunc

	runWorker func(ctx context.Context, channel string) error
	log       *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		channels: make(map[contracts.SubscriptionKey]map[string]contracts.Client),
		held:     make(map[string]map[contracts.SubscriptionKey]struct{}),
		clients:  make(map[string]contracts.Client),
		workers:  make(map[contracts.SubscriptionKey]context.CancelFunc),
		log:      log,
	}
}

// RunWorker installs the per-channel worker launcher. A worker is started
// when a conversation or group channel gains its first subscriber and
// cancelled when the last one leaves. Presence channels carry no stream,
// so they get no worker.
func (h *Registry) RunWorker(runWorker func(ctx context.Context, channel string) error) {
	h.runWorker = runWorker
}

// Track makes the connection addressable by Send ahead of its first
// subscription, so the initial chat-list push and error events reach it.
func (h *Registry) Track(c contracts.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
}

func (h *Registry) Add(key contracts.SubscriptionKey, c contracts.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[key] == nil {
		h.channels[key] = make(map[string]contracts.Client)
		if h.runWorker != nil && key.Kind != contracts.KindPresence {
			ctx, cancel := context.WithCancel(context.Background())
			h.workers[key] = cancel
			go h.runWorker(ctx, key.String())
		}
	}
	h.channels[key][c.ID()] = c
	if h.held[c.ID()] == nil {
		h.held[c.ID()] = make(map[contracts.SubscriptionKey]struct{})
	}
	h.held[c.ID()][key] = struct{}{}
	h.clients[c.ID()] = c
}

func (h *Registry) Remove(key contracts.SubscriptionKey, c contracts.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(key, c.ID())
}

func (h *Registry) RemoveEverywhere(c contracts.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key := range h.held[c.ID()] {
		h.removeLocked(key, c.ID())
	}
	delete(h.held, c.ID())
	delete(h.clients, c.ID())
}

func (h *Registry) removeLocked(key contracts.SubscriptionKey, clientID string) {
	members := h.channels[key]
	if members == nil {
		return
	}
	delete(members, clientID)
	if keys := h.held[clientID]; keys != nil {
		delete(keys, key)
	}
	if len(members) == 0 {
		delete(h.channels, key)
		if cancel := h.workers[key]; cancel != nil {
			cancel()
			delete(h.workers, key)
		}
	}
}

// Broadcast delivers the event to every subscriber of the key. Members are
// snapshotted under the read lock and written to outside it, so a slow or
// closing connection never blocks registry mutation, and a concurrent
// removal never corrupts the iteration. Send failures (closed transports)
// are skipped.
func (h *Registry) Broadcast(ctx context.Context, key contracts.SubscriptionKey, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.ErrorContext(ctx, "registry - broadcast - marshal failed", "key", key.String(), "err", err)
		return
	}
	h.mu.RLock()
	targets := make([]contracts.Client, 0, len(h.channels[key]))
	for _, c := range h.channels[key] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		if err := c.Send(ctx, data); err != nil {
			h.log.DebugContext(ctx, "registry - broadcast - skipped closed connection", "key", key.String(), "client_id", c.ID())
		}
	}
}

// Send delivers the event to one connection, if it is still registered.
func (h *Registry) Send(ctx context.Context, clientID string, event domain.Event) {
	h.mu.RLock()
	c := h.clients[clientID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.log.ErrorContext(ctx, "registry - send - marshal failed", "client_id", clientID, "err", err)
		return
	}
	if err := c.Send(ctx, data); err != nil {
		h.log.DebugContext(ctx, "registry - send - skipped closed connection", "client_id", clientID)
	}
}
