package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

type WebSocket struct {
	*websocket.Conn
	ctx          context.Context
	cancel       context.CancelFunc
	writeTimeout time.Duration
}

func NewWebSocket(parent context.Context, conn *websocket.Conn, readLimit int64, writeTimeout time.Duration) *WebSocket {
	ctx, cancel := context.WithCancel(parent)
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return &WebSocket{Conn: conn, ctx: ctx, cancel: cancel, writeTimeout: writeTimeout}
}

func (w *WebSocket) WriteMessage(data []byte) error {
	w.Conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return w.Conn.WriteMessage(websocket.TextMessage, data)
}

// ReadLoop feeds inbound frames to onMsg until the connection closes.
// Cleanup runs whichever way the loop exits.
func (w *WebSocket) ReadLoop(onMsg func([]byte)) {
	defer w.Close()
	for {
		_, data, err := w.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("ws - read loop - unexpected close", "err", err)
			}
			break
		}
		if len(data) > 0 {
			onMsg(data)
		}
	}
}

func (w *WebSocket) Close() {
	w.cancel()
	_ = w.Conn.Close()
}
