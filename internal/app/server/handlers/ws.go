package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"venuelive/internal/app/server/ws"
	"venuelive/internal/config"
	"venuelive/internal/core/contracts"
	"venuelive/internal/core/domain"
	"venuelive/internal/core/services"
	"venuelive/internal/platform/logger"
	"venuelive/pkg/middleware"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type WSHandler struct {
	hub      contracts.Registry
	presence *services.PresenceService
	subs     *services.SubscriptionService
	chatList *services.ChatListService
	gw       config.GatewayConfig
}

func NewWSHandler(
	hub contracts.Registry,
	presence *services.PresenceService,
	subs *services.SubscriptionService,
	chatList *services.ChatListService,
	gw config.GatewayConfig,
) *WSHandler {
	return &WSHandler{
		hub:      hub,
		presence: presence,
		subs:     subs,
		chatList: chatList,
		gw:       gw,
	}
}

// Handler owns the full connection lifecycle: authenticated upgrade,
// presence connect, initial chat-list push, command loop, and the
// unconditional disconnect cleanup. The deferred cleanup runs whichever
// way the read loop exits, and every step in it is idempotent.
func (s *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	span := trace.SpanFromContext(r.Context())

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		log.ErrorContext(r.Context(), "ws handler - unauthorised missing identity")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	span.SetAttributes(attribute.String("user.id", identity.UserID.String()))

	// The session outlives the HTTP request context.
	sessionCtx := context.WithoutCancel(r.Context())
	ctx, cancel := context.WithCancel(sessionCtx)
	defer cancel()

	upgrader := websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: s.gw.HandshakeTimeout,
		CheckOrigin: func(r *http.Request) bool {
			return true // tighten later
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "ws handler - upgrade failed", "err", err)
		return
	}
	conn.SetCloseHandler(func(code int, text string) error {
		cancel()
		return nil
	})

	socket := ws.NewWebSocket(ctx, conn, s.gw.ReadLimit, s.gw.WriteTimeout)
	client := ws.NewClient(ctx, socket, identity)

	// Cleanup is registered before the presence connect so no exit path,
	// including a failed connect, leaves the client tracked or counted.
	// Every step is idempotent.
	defer client.Close()
	s.hub.Track(client)
	defer s.hub.RemoveEverywhere(client)
	defer s.presence.HandleDisconnect(sessionCtx, identity, client)

	if err := s.presence.HandleConnect(ctx, identity, client); err != nil {
		log.ErrorContext(ctx, "ws handler - presence connect failed", "user_id", identity.UserID, "err", err)
		return
	}

	log.InfoContext(ctx, "ws handler - connection established", "user_id", identity.UserID, "client_id", client.ID())

	s.pushChatList(ctx, log, client, domain.TypeChatList, 0, nil)
	go s.presence.Heartbeat(ctx, identity, client)

	socket.ReadLoop(func(data []byte) {
		s.handleCommand(ctx, log, client, data)
	})
}

func (s *WSHandler) handleCommand(ctx context.Context, log *slog.Logger, client contracts.Client, data []byte) {
	var cmd domain.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		// Malformed frames never kill the connection.
		log.WarnContext(ctx, "ws handler - malformed command ignored", "client_id", client.ID(), "err", err)
		return
	}
	switch cmd.Type {
	case domain.CmdSubscribe:
		key, ok := channelKey(&cmd)
		if !ok {
			log.WarnContext(ctx, "ws handler - subscribe without channel id", "client_id", client.ID())
			return
		}
		if err := s.subs.Subscribe(ctx, client, key); err != nil {
			s.sendError(ctx, client, err)
		}
	case domain.CmdUnsubscribe:
		key, ok := channelKey(&cmd)
		if !ok {
			return
		}
		s.subs.Unsubscribe(ctx, client, key)
	case domain.CmdWatchUserStatus:
		if cmd.UserID == nil {
			log.WarnContext(ctx, "ws handler - watch without user id", "client_id", client.ID())
			return
		}
		s.presence.Watch(ctx, client, *cmd.UserID)
	case domain.CmdChatList:
		take := 0
		if cmd.Take != nil {
			take = *cmd.Take
		}
		s.pushChatList(ctx, log, client, domain.TypeChatList, take, cmd.Cursor)
	default:
		log.WarnContext(ctx, "ws handler - unknown command ignored", "type", cmd.Type, "client_id", client.ID())
	}
}

func (s *WSHandler) pushChatList(ctx context.Context, log *slog.Logger, client contracts.Client, eventType string, take int, cursor *time.Time) {
	page, err := s.chatList.ChatList(ctx, client.Identity().ProfileID, take, cursor)
	if err != nil {
		log.ErrorContext(ctx, "ws handler - chat list failed", "client_id", client.ID(), "err", err)
		s.sendError(ctx, client, err)
		return
	}
	s.hub.Send(ctx, client.ID(), domain.ChatListEvent{Type: eventType, Payload: page})
}

func (s *WSHandler) sendError(ctx context.Context, client contracts.Client, err error) {
	code := "internal"
	switch {
	case errors.Is(err, domain.ErrNotAMember):
		code = "not_a_member"
	case errors.Is(err, domain.ErrConversationNotFound), errors.Is(err, domain.ErrGroupNotFound):
		code = "not_found"
	case errors.Is(err, domain.ErrInvalidChannelKey):
		code = "invalid_channel"
	}
	s.hub.Send(ctx, client.ID(), domain.ErrorEvent{
		Type:    domain.TypeError,
		Code:    code,
		Message: err.Error(),
	})
}

// channelKey builds the subscription key a command addresses. Exactly one
// of the id fields must be set.
func channelKey(cmd *domain.Command) (contracts.SubscriptionKey, bool) {
	switch {
	case cmd.ConversationID != nil && cmd.GroupID == nil:
		return contracts.ConversationKey(*cmd.ConversationID), true
	case cmd.GroupID != nil && cmd.ConversationID == nil:
		return contracts.GroupKey(*cmd.GroupID), true
	default:
		return contracts.SubscriptionKey{}, false
	}
}
