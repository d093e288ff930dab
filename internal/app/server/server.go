package server

import (
	"log/slog"
	"net/http"
	"time"

	"venuelive/internal/app/registry"
	"venuelive/internal/app/server/handlers"
	"venuelive/internal/config"
	"venuelive/internal/core/services"
	"venuelive/pkg/middleware"
)

type Server struct {
	mux         *http.ServeMux
	log         *slog.Logger
	name        string
	addr        string
	chatHandler *handlers.ChatHandler
	wsHandler   *handlers.WSHandler
	tokenSvc    *services.TokenService
}

func NewServer(
	log *slog.Logger,
	cfg config.ServiceConfig,
	gw config.GatewayConfig,
	tokenSvc *services.TokenService,
	chatSvc *services.ChatService,
	messageSvc *services.MessageService,
	presenceSvc *services.PresenceService,
	subSvc *services.SubscriptionService,
	chatListSvc *services.ChatListService,
	hub *registry.Registry,
) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		log:         log,
		name:        cfg.Name,
		addr:        cfg.Addr,
		chatHandler: handlers.NewChatHandler(chatSvc, messageSvc),
		wsHandler:   handlers.NewWSHandler(hub, presenceSvc, subSvc, chatListSvc, gw),
		tokenSvc:    tokenSvc,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	auth := middleware.AuthMiddleware(s.tokenSvc)
	protect := func(h http.HandlerFunc) http.Handler {
		return middleware.TracerMiddleware(s.name)(
			middleware.RequestLogger(s.log)(
				auth(h)))
	}

	s.mux.Handle("POST /api/conversations", protect(s.chatHandler.StartConversation))
	s.mux.Handle("POST /api/groups", protect(s.chatHandler.CreateGroup))
	s.mux.Handle("POST /api/messages", protect(s.chatHandler.CreateMessage))
	s.mux.Handle("DELETE /api/messages/{id}", protect(s.chatHandler.DeleteMessage))
	s.mux.Handle("GET /api/messages", protect(s.chatHandler.GetChatHistory))
	s.mux.Handle("/ws", protect(s.wsHandler.Handler))
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start() error {
	server := &http.Server{
		Addr:        s.addr,
		Handler:     s.mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would kill long-lived websocket sessions.
	}
	s.log.Info("server starting", "addr", s.addr)
	return server.ListenAndServe()
}
