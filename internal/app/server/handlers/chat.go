package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"venuelive/internal/core/contracts"
	"venuelive/internal/core/domain"
	"venuelive/internal/core/services"
	"venuelive/internal/platform/logger"
	"venuelive/pkg/middleware"

	"github.com/google/uuid"
)

// ChatHandler is the plain request/response side of the subsystem: the
// conversation bootstrap, group creation, message creation (the pipeline
// that feeds the dispatcher after commit), and the pull-based history
// clients reconcile against when live push missed something.
type ChatHandler struct {
	chat     *services.ChatService
	messages *services.MessageService
}

func NewChatHandler(chat *services.ChatService, messages *services.MessageService) *ChatHandler {
	return &ChatHandler{chat: chat, messages: messages}
}

func (h *ChatHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		ProfileID uuid.UUID `json:"profileId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	conv, err := h.chat.StartConversation(r.Context(), identity, req.ProfileID)
	if err != nil {
		log.ErrorContext(r.Context(), "chat handler - start conversation failed", "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          conv.ID,
		"memberOneId": conv.MemberOneID,
		"memberTwoId": conv.MemberTwoID,
		"createdAt":   conv.CreatedAt,
	})
}

func (h *ChatHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		Name      string      `json:"name"`
		AvatarURL *string     `json:"avatarUrl,omitempty"`
		MemberIDs []uuid.UUID `json:"memberIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	group, err := h.chat.CreateGroup(r.Context(), identity, req.Name, req.AvatarURL, req.MemberIDs)
	if err != nil {
		log.ErrorContext(r.Context(), "chat handler - create group failed", "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        group.ID,
		"name":      group.Name,
		"avatarUrl": group.AvatarURL,
		"memberIds": group.MemberIDs,
		"createdAt": group.CreatedAt,
	})
}

func (h *ChatHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		ConversationID *uuid.UUID `json:"conversationId,omitempty"`
		GroupID        *uuid.UUID `json:"groupId,omitempty"`
		Content        string     `json:"content"`
		FileURL        *string    `json:"fileUrl,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	key, ok := requestChannel(req.ConversationID, req.GroupID)
	if !ok {
		http.Error(w, "exactly one of conversationId or groupId required", http.StatusBadRequest)
		return
	}
	msg, err := h.messages.CreateMessage(r.Context(), identity, key, req.Content, req.FileURL)
	if err != nil {
		log.ErrorContext(r.Context(), "chat handler - create message failed", "channel", key.String(), "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.NewMessageView(msg))
}

func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}
	msg, err := h.messages.DeleteMessage(r.Context(), identity, id)
	if err != nil {
		log.ErrorContext(r.Context(), "chat handler - delete message failed", "message_id", id, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewMessageView(msg))
}

func (h *ChatHandler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	convID, okConv := parseUUIDParam(r, "conversationId")
	groupID, okGroup := parseUUIDParam(r, "groupId")
	if !okConv && !okGroup {
		http.Error(w, "conversationId or groupId required", http.StatusBadRequest)
		return
	}
	key, ok := requestChannel(convID, groupID)
	if !ok {
		http.Error(w, "exactly one of conversationId or groupId required", http.StatusBadRequest)
		return
	}
	var cursor *time.Time
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = &t
	}
	take := 0
	if raw := r.URL.Query().Get("take"); raw != "" {
		take, _ = strconv.Atoi(raw)
	}
	msgs, err := h.messages.History(r.Context(), identity, key, cursor, take)
	if err != nil {
		log.ErrorContext(r.Context(), "chat handler - history failed", "channel", key.String(), "err", err)
		writeError(w, err)
		return
	}
	views := make([]domain.MessageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, domain.NewMessageView(&msgs[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

func requestChannel(convID, groupID *uuid.UUID) (contracts.SubscriptionKey, bool) {
	switch {
	case convID != nil && groupID == nil:
		return contracts.ConversationKey(*convID), true
	case groupID != nil && convID == nil:
		return contracts.GroupKey(*groupID), true
	default:
		return contracts.SubscriptionKey{}, false
	}
}

func parseUUIDParam(r *http.Request, name string) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	return &id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotAMember), errors.Is(err, domain.ErrNotSender):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrConversationNotFound),
		errors.Is(err, domain.ErrGroupNotFound),
		errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrProfileNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidProfileID),
		errors.Is(err, domain.ErrInvalidGroupID),
		errors.Is(err, domain.ErrInvalidMessage),
		errors.Is(err, domain.ErrInvalidChannelKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
