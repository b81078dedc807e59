package api

import "time"

// A User is a member of the directory. Users are created and refreshed on
// sign-in, keyed by the identity provider's subject (ExternalID), and are
// never deleted.
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	IsOnline   bool      `json:"is_online"`
	LastSeen   time.Time `json:"last_seen"`
}

// A Conversation holds exactly two participants in the direct-message case.
// The group fields exist in the shape but no operation ever sets them.
type Conversation struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	IsGroup       bool      `json:"is_group"`
	GroupName     string    `json:"group_name,omitempty"`
	GroupAvatar   string    `json:"group_avatar,omitempty"`
	LastMessageID string    `json:"last_message_id,omitempty"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// A ConversationSummary annotates a conversation with everything the sidebar
// needs: the other participant, the latest message and an unread count.
type ConversationSummary struct {
	Conversation
	OtherUser   *User    `json:"other_user"`
	LastMessage *Message `json:"last_message"`
	UnreadCount int      `json:"unread_count"`
}

// Message types. A message starts as text and can only move to deleted.
const (
	MessageTypeText    = "text"
	MessageTypeDeleted = "deleted"
)

// DeletedPlaceholder replaces the content of a soft-deleted message. The
// original text is not recoverable.
const DeletedPlaceholder = "This message was deleted"

// A Message is a persisted chat message with its sender and reactions joined.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Sender         *User      `json:"sender,omitempty"`
	Content        string     `json:"content"`
	Type           string     `json:"type"`
	Reactions      []Reaction `json:"reactions"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// A Reaction is a single (user, emoji) pair on a message. A user holds at
// most one instance per emoji; repeating the pair removes it.
type Reaction struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}
