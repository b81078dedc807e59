package api

import "errors"

// Storage implementations return these sentinels so handlers can map them to
// a status code without inspecting driver errors.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotMessageSender     = errors.New("caller is not the message sender")
)
