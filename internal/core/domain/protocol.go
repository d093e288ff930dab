package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeChatList       = "chat_list"
	TypeChatListUpdate = "chat_list_update"
	TypeUserStatus     = "user_status"
	TypeCreate         = "create"
	TypeUpdate         = "update"
	TypeDelete         = "delete"
	TypeError          = "error"

	CmdSubscribe       = "subscribe"
	CmdUnsubscribe     = "unsubscribe"
	CmdWatchUserStatus = "watch_user_status"
	CmdChatList        = "chat_list"
)

// Event is one of the closed set of outbound push payloads. Every variant
// carries its own "type" tag so clients can switch exhaustively.
type Event interface {
	EventType() string
}

// ChatListEvent carries a full or updated page of chat summaries.
// Type is "chat_list" for the initial push and replies, "chat_list_update"
// for nudges after a new message.
type ChatListEvent struct {
	Type    string        `json:"type"`
	Payload []ChatSummary `json:"payload"`
}

func (e ChatListEvent) EventType() string { return e.Type }

// UserStatusEvent reports a presence transition to watchers.
type UserStatusEvent struct {
	Type    string        `json:"type"` // always "user_status"
	Payload PresenceState `json:"payload"`
}

type PresenceState struct {
	UserID uuid.UUID `json:"userId"`
	Active bool      `json:"active"`
}

func (e UserStatusEvent) EventType() string { return e.Type }

// MessageEvent pushes a message to channel subscribers. Type is one of
// "create", "update", "delete".
type MessageEvent struct {
	Type    string      `json:"type"`
	Payload MessageView `json:"payload"`
}

func (e MessageEvent) EventType() string { return e.Type }

// MessageView is the wire shape of a message.
type MessageView struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	GroupID        *uuid.UUID `json:"group_id,omitempty"`
	SenderID       uuid.UUID  `json:"sender_id"`
	Content        string     `json:"content"`
	FileURL        *string    `json:"file_url,omitempty"`
	Deleted        bool       `json:"deleted"`
	CreatedAt      time.Time  `json:"created_at"`
}

func NewMessageView(m *Message) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		GroupID:        m.GroupID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		FileURL:        m.FileURL,
		Deleted:        m.Deleted,
		CreatedAt:      m.CreatedAt,
	}
}

// ErrorEvent is the WS-safe rejection surface, e.g. for an unauthorized
// subscription attempt.
type ErrorEvent struct {
	Type    string `json:"type"` // always "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ErrorEvent) EventType() string { return e.Type }

// Command is an inbound post-auth client frame. Exactly one of the id
// fields is meaningful depending on Type.
type Command struct {
	Type           string     `json:"type"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
	GroupID        *uuid.UUID `json:"groupId,omitempty"`
	UserID         *uuid.UUID `json:"userId,omitempty"`
	Take           *int       `json:"take,omitempty"`
	Cursor         *time.Time `json:"cursor,omitempty"`
}

// BroadcastJob is the stream-carried unit of work handed from the
// message-creation pipeline (after commit) to the channel worker that
// performs the live fan-out.
type BroadcastJob struct {
	Tag     string      `json:"tag"` // create | update | delete
	Channel string      `json:"channel"`
	Message MessageView `json:"message"`
}
