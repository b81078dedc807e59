package postgres

import (
	"time"

	"github.com/pairchat/pairchat/api"
)

// A user represents a directory member in the database.
type user struct {
	ID         string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	ExternalID string    `bun:"external_id,notnull,unique"`
	Email      string    `bun:",notnull"`
	Name       string    `bun:",notnull"`
	IsOnline   bool      `bun:"is_online,notnull,default:false"`
	LastSeen   time.Time `bun:"last_seen,nullzero,default:now()"`
}

// A conversation holds the participant pair. pair_key is the sorted
// "low:high" join of the two participant ids; its unique index is what makes
// get-or-create race-free. Group fields are shape only.
type conversation struct {
	ID            string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	PairKey       string    `bun:"pair_key,nullzero,unique"`
	Participants  []string  `bun:",array,notnull"`
	IsGroup       bool      `bun:"is_group,notnull,default:false"`
	GroupName     string    `bun:"group_name,nullzero"`
	GroupAvatar   string    `bun:"group_avatar,nullzero"`
	LastMessageID string    `bun:"last_message_id,nullzero,type:uuid"`
	LastMessageAt time.Time `bun:"last_message_at,nullzero"`
	CreatedAt     time.Time `bun:",nullzero,default:now()"`
}

// A message represents a message in the database.
type message struct {
	ID             string     `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	ConversationID string     `bun:"conversation_id,notnull,type:uuid"`
	SenderID       string     `bun:"sender_id,notnull,type:uuid"`
	Content        string     `bun:",notnull"`
	Type           string     `bun:",notnull,default:'text'"`
	CreatedAt      time.Time  `bun:",nullzero,default:now()"`
	UpdatedAt      time.Time  `bun:",nullzero"`
	Sender         *user      `bun:"rel:belongs-to,join:sender_id=id"`
	Reactions      []reaction `bun:"rel:has-many,join:id=message_id"`
}

// A reaction is one (user, emoji) pair on a message; the unique index over
// (message_id, user_id, emoji) is what makes the toggle idempotent.
type reaction struct {
	ID        string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	MessageID string    `bun:"message_id,notnull,type:uuid"`
	UserID    string    `bun:"user_id,notnull,type:uuid"`
	Emoji     string    `bun:",notnull"`
	CreatedAt time.Time `bun:",nullzero,default:now()"`
}

func (u user) APIUser() api.User {
	return api.User{
		ID:         u.ID,
		ExternalID: u.ExternalID,
		Email:      u.Email,
		Name:       u.Name,
		IsOnline:   u.IsOnline,
		LastSeen:   u.LastSeen,
	}
}

func (c conversation) APIConversation() api.Conversation {
	return api.Conversation{
		ID:            c.ID,
		Participants:  c.Participants,
		IsGroup:       c.IsGroup,
		GroupName:     c.GroupName,
		GroupAvatar:   c.GroupAvatar,
		LastMessageID: c.LastMessageID,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
	}
}

func (m message) APIMessage() api.Message {
	reactions := make([]api.Reaction, len(m.Reactions))
	for i, r := range m.Reactions {
		reactions[i] = r.APIReaction()
	}

	msg := api.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Type:           m.Type,
		Reactions:      reactions,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.Sender != nil {
		sender := m.Sender.APIUser()
		msg.Sender = &sender
	}
	return msg
}

func (r reaction) APIReaction() api.Reaction {
	return api.Reaction{
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji,
		CreatedAt: r.CreatedAt,
	}
}
