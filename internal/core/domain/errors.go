package domain

import "errors"

var (
	ErrInvalidConversationID = errors.New("invalid conversation id")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrInvalidGroupID        = errors.New("invalid group id")
	ErrGroupNotFound         = errors.New("group not found")
	ErrInvalidMessage        = errors.New("invalid message")
	ErrMessageNotFound       = errors.New("message not found")
	ErrInvalidProfileID      = errors.New("invalid profile id")
	ErrProfileNotFound       = errors.New("profile not found")
	ErrNotAMember            = errors.New("caller is not a member of the channel")
	ErrNotSender             = errors.New("caller is not the message sender")
	ErrInvalidChannelKey     = errors.New("invalid channel key")
	ErrUnauthorized          = errors.New("unauthorized")
)
