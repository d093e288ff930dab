package ws

import (
	"context"
	"errors"
	"sync"

	"venuelive/internal/core/domain"

	"github.com/google/uuid"
)

// RuntimeClient is one live, authenticated connection. Writes go through a
// buffered channel drained by a single writeLoop goroutine, so registry
// broadcasts never block on a slow socket; a full buffer or a closed
// client surfaces as a send error the registry skips.
type RuntimeClient struct {
	ctx      context.Context
	cancel   context.CancelFunc
	ws       *WebSocket
	id       string
	identity domain.Identity
	out      chan []byte
	once     sync.Once
}

func NewClient(parent context.Context, ws *WebSocket, identity domain.Identity) *RuntimeClient {
	ctx, cancel := context.WithCancel(parent)
	c := &RuntimeClient{
		ctx:      ctx,
		cancel:   cancel,
		ws:       ws,
		id:       uuid.NewString(),
		identity: identity,
		out:      make(chan []byte, 256),
	}
	go c.writeLoop()
	return c
}

func (c *RuntimeClient) ID() string                { return c.id }
func (c *RuntimeClient) Identity() domain.Identity { return c.identity }

var (
	errClientClosed = errors.New("client closed")
	errClientBusy   = errors.New("client send buffer full")
)

// Send never blocks: a full buffer means the peer is not draining fast
// enough and the frame is dropped with an error instead of stalling a
// broadcast.
func (c *RuntimeClient) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.ctx.Done():
		return errClientClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case c.out <- data:
		return nil
	default:
		return errClientBusy
	}
}

// Close is safe to call from any goroutine and any number of times. The
// out channel is never closed; the cancelled context stops the writeLoop.
func (c *RuntimeClient) Close() {
	c.once.Do(func() {
		c.cancel()
		c.ws.Close()
	})
}

func (c *RuntimeClient) writeLoop() {
	defer c.Close()
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.out:
			_ = c.ws.WriteMessage(data)
		}
	}
}
