package services_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"venuelive/internal/core/domain"

	"github.com/google/uuid"
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

// memConvRepo keys conversations by the normalised member pair, the same
// invariant the postgres unique index enforces.
type memConvRepo struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*domain.Conversation
	byPair    map[[2]uuid.UUID]uuid.UUID
	summaries []domain.ChatSummary
}

func newMemConvRepo() *memConvRepo {
	return &memConvRepo{
		byID:   make(map[uuid.UUID]*domain.Conversation),
		byPair: make(map[[2]uuid.UUID]uuid.UUID),
	}
}

func (r *memConvRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memConvRepo) GetOrCreate(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	one, two := domain.NormalizePair(a, b)
	r.mu.Lock()
	defer r.mu.Unlock()
	pair := [2]uuid.UUID{one, two}
	if id, ok := r.byPair[pair]; ok {
		cp := *r.byID[id]
		return &cp, nil
	}
	c := &domain.Conversation{
		ID:          uuid.New(),
		MemberOneID: one,
		MemberTwoID: two,
		CreatedAt:   time.Now(),
	}
	r.byID[c.ID] = c
	r.byPair[pair] = c.ID
	cp := *c
	return &cp, nil
}

func (r *memConvRepo) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]domain.ChatSummary, error) {
	return r.summaries, nil
}

func (r *memConvRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type memGroupRepo struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*domain.Group
	summaries []domain.ChatSummary

	lastMessageSet map[uuid.UUID]time.Time
}

func newMemGroupRepo() *memGroupRepo {
	return &memGroupRepo{
		byID:           make(map[uuid.UUID]*domain.Group),
		lastMessageSet: make(map[uuid.UUID]time.Time),
	}
}

func (r *memGroupRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *memGroupRepo) Create(ctx context.Context, g *domain.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g.CreatedAt = time.Now()
	cp := *g
	r.byID[g.ID] = &cp
	return nil
}

func (r *memGroupRepo) IsMember(ctx context.Context, groupID, profileID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.byID[groupID]
	if !ok {
		return false, domain.ErrGroupNotFound
	}
	for _, id := range g.MemberIDs {
		if id == profileID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memGroupRepo) SetLastMessage(ctx context.Context, groupID, messageID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[groupID]; !ok {
		return domain.ErrGroupNotFound
	}
	r.lastMessageSet[groupID] = at
	return nil
}

func (r *memGroupRepo) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]domain.ChatSummary, error) {
	return r.summaries, nil
}

type memProfileRepo struct {
	mu           sync.Mutex
	byID         map[uuid.UUID]*domain.Profile
	activeLg     []bool // SetActive history, in call order
	setActiveErr error  // returned by the next SetActive, then cleared
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{byID: make(map[uuid.UUID]*domain.Profile)}
}

func (r *memProfileRepo) add(p *domain.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = p
}

func (r *memProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memProfileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrProfileNotFound
}

func (r *memProfileRepo) failNextSetActive(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setActiveErr = err
}

func (r *memProfileRepo) SetActive(ctx context.Context, profileID uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.setActiveErr; err != nil {
		r.setActiveErr = nil
		return err
	}
	if p, ok := r.byID[profileID]; ok {
		p.Active = active
	}
	r.activeLg = append(r.activeLg, active)
	return nil
}

func (r *memProfileRepo) activeLog() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.activeLg))
	copy(out, r.activeLg)
	return out
}

type memMessageRepo struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*domain.Message
	saved []uuid.UUID
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{byID: make(map[uuid.UUID]*domain.Message)}
}

func (r *memMessageRepo) Save(ctx context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.byID[m.ID] = &cp
	r.saved = append(r.saved, m.ID)
	return nil
}

func (r *memMessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMessageRepo) MarkDeleted(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return domain.ErrMessageNotFound
	}
	m.Deleted = true
	return nil
}

func (r *memMessageRepo) ListPage(ctx context.Context, conversationID, groupID *uuid.UUID, cursor *time.Time, take int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, m := range r.byID {
		if conversationID != nil && (m.ConversationID == nil || *m.ConversationID != *conversationID) {
			continue
		}
		if groupID != nil && (m.GroupID == nil || *m.GroupID != *groupID) {
			continue
		}
		if cursor != nil && !m.CreatedAt.Before(*cursor) {
			continue
		}
		out = append(out, *m)
		if len(out) == take {
			break
		}
	}
	return out, nil
}

func (r *memMessageRepo) savedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

type published struct {
	channel string
	data    []byte
}

type fakeQueue struct {
	mu        sync.Mutex
	entries   []published
	acked     []string
	deleted   []string
	publishFn error
}

func (q *fakeQueue) Publish(ctx context.Context, channel string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishFn != nil {
		return q.publishFn
	}
	q.entries = append(q.entries, published{channel: channel, data: payload})
	return nil
}

func (q *fakeQueue) Subscribe(ctx context.Context, channel, group string, handler func(ctx context.Context, entryID string, data []byte) error) error {
	return nil
}

func (q *fakeQueue) Ack(ctx context.Context, channel, group, entryID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, entryID)
	return nil
}

func (q *fakeQueue) DeleteEntry(ctx context.Context, channel, entryID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, entryID)
	return nil
}

func (q *fakeQueue) DeleteStream(ctx context.Context, channel string) error { return nil }

func (q *fakeQueue) publishedEntries() []published {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]published, len(q.entries))
	copy(out, q.entries)
	return out
}

type fakeMirror struct {
	mu        sync.Mutex
	checkIns  []string
	checkOuts []string
}

func (m *fakeMirror) CheckIn(ctx context.Context, userID, connID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkIns = append(m.checkIns, userID+"/"+connID)
	return nil
}

func (m *fakeMirror) CheckOut(ctx context.Context, userID, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkOuts = append(m.checkOuts, userID+"/"+connID)
	return nil
}

func (m *fakeMirror) LiveConnections(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

// nopTx runs the function without a real transaction; repo fakes are
// already atomic.
type nopTx struct{}

func (nopTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
