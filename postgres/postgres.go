// Package postgres persists the directories and the message log in
// PostgreSQL via bun.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/pairchat/pairchat/api"
)

// Postgres provides storage in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and pings the DB to ensure the connection
// is working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// Migrate creates the tables and indexes if they do not exist yet.
func (pg *Postgres) Migrate(ctx context.Context) error {
	if _, err := pg.bun.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}

	models := []any{
		(*user)(nil),
		(*conversation)(nil),
		(*message)(nil),
		(*reaction)(nil),
	}
	for _, m := range models {
		if _, err := pg.bun.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indexes := []*bun.CreateIndexQuery{
		pg.bun.NewCreateIndex().
			Model((*reaction)(nil)).
			Index("reactions_message_user_emoji_key").
			Unique().
			Column("message_id", "user_id", "emoji"),
		pg.bun.NewCreateIndex().
			Model((*message)(nil)).
			Index("messages_conversation_created_idx").
			Column("conversation_id", "created_at"),
	}
	for _, q := range indexes {
		if _, err := q.IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// UpsertUser records a sign-in: insert on first contact, otherwise refresh
// last_seen and the online flag. The external id carries the unique index
// that makes this a single atomic statement.
func (pg *Postgres) UpsertUser(ctx context.Context, externalID, email, name string) (api.User, error) {
	u := &user{
		ExternalID: externalID,
		Email:      email,
		Name:       name,
		IsOnline:   true,
		LastSeen:   time.Now(),
	}
	_, err := pg.bun.NewInsert().
		Model(u).
		On("CONFLICT (external_id) DO UPDATE").
		Set("last_seen = EXCLUDED.last_seen").
		Set("is_online = TRUE").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return api.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return u.APIUser(), nil
}

// SetUserStatus flips the user's online flag. Going offline also refreshes
// last_seen, so the unread heuristic treats the moment of disconnect as the
// last time the user saw the app.
func (pg *Postgres) SetUserStatus(ctx context.Context, externalID string, online bool) (api.User, error) {
	var u user
	err := pg.bun.NewUpdate().
		Model(&u).
		Set("is_online = ?", online).
		Set("last_seen = ?", time.Now()).
		Where("external_id = ?", externalID).
		Returning("*").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return api.User{}, api.ErrUserNotFound
	}
	if err != nil {
		return api.User{}, fmt.Errorf("update status: %w", err)
	}
	return u.APIUser(), nil
}

// GetUserByExternalID resolves the identity provider's subject to a user.
func (pg *Postgres) GetUserByExternalID(ctx context.Context, externalID string) (api.User, error) {
	var u user
	err := pg.bun.NewSelect().
		Model(&u).
		Where("external_id = ?", externalID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return api.User{}, api.ErrUserNotFound
	}
	if err != nil {
		return api.User{}, fmt.Errorf("scan: %w", err)
	}
	return u.APIUser(), nil
}

// ListUsers returns the whole directory ordered by name.
func (pg *Postgres) ListUsers(ctx context.Context) ([]api.User, error) {
	var users []user
	if err := pg.bun.NewSelect().Model(&users).Order("name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]api.User, len(users))
	for i, u := range users {
		out[i] = u.APIUser()
	}
	return out, nil
}

// SearchUsers matches the term case-insensitively against display names.
// excludeUserID, when non-empty, removes one user from the result.
func (pg *Postgres) SearchUsers(ctx context.Context, term, excludeUserID string) ([]api.User, error) {
	var users []user
	q := pg.bun.NewSelect().
		Model(&users).
		Where("name ILIKE ?", "%"+term+"%").
		Order("name ASC")
	if excludeUserID != "" {
		q = q.Where("id != ?", excludeUserID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]api.User, len(users))
	for i, u := range users {
		out[i] = u.APIUser()
	}
	return out, nil
}

// GetUsersByIDs returns the user records for the given ids.
func (pg *Postgres) GetUsersByIDs(ctx context.Context, ids []string) ([]api.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []user
	err := pg.bun.NewSelect().
		Model(&users).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]api.User, len(users))
	for i, u := range users {
		out[i] = u.APIUser()
	}
	return out, nil
}

// pairKey normalizes an unordered user pair to its unique lookup key.
func pairKey(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return pair[0] + ":" + pair[1]
}

// GetOrCreateConversation returns the direct conversation for the pair,
// inserting it when absent. ON CONFLICT DO NOTHING against the pair_key
// unique index means two concurrent first contacts cannot produce two rows;
// the loser simply reads the winner's.
func (pg *Postgres) GetOrCreateConversation(ctx context.Context, userA, userB string) (string, error) {
	conv := &conversation{
		PairKey:      pairKey(userA, userB),
		Participants: []string{userA, userB},
		CreatedAt:    time.Now(),
	}
	_, err := pg.bun.NewInsert().
		Model(conv).
		On("CONFLICT (pair_key) DO NOTHING").
		Returning("id").
		Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	if conv.ID != "" {
		return conv.ID, nil
	}

	// The pair already had a conversation; fetch it.
	var existing conversation
	err = pg.bun.NewSelect().
		Model(&existing).
		Column("id").
		Where("pair_key = ?", conv.PairKey).
		Scan(ctx)
	if err != nil {
		return "", fmt.Errorf("scan: %w", err)
	}
	return existing.ID, nil
}

// ListConversationsForUser builds the sidebar view: every conversation the
// user participates in, with the other participant, the last message and an
// unread count, ordered by most recent activity (no messages sorts last).
//
// The unread count follows the original heuristic: messages not sent by the
// viewer and newer than the other participant's last_seen. It approximates
// "read" with "signed in recently" and is kept as a documented limitation.
func (pg *Postgres) ListConversationsForUser(ctx context.Context, userID string) ([]api.ConversationSummary, error) {
	var convs []conversation
	err := pg.bun.NewSelect().
		Model(&convs).
		Where("? = ANY (participants)", userID).
		OrderExpr("last_message_at DESC NULLS LAST").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	out := make([]api.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summary := api.ConversationSummary{Conversation: c.APIConversation()}

		var otherID string
		for _, p := range c.Participants {
			if p != userID {
				otherID = p
				break
			}
		}
		var lastSeen time.Time
		if otherID != "" {
			var other user
			err := pg.bun.NewSelect().Model(&other).Where("id = ?", otherID).Scan(ctx)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("scan other participant: %w", err)
			}
			if err == nil {
				u := other.APIUser()
				summary.OtherUser = &u
				lastSeen = other.LastSeen
			}
		}

		if c.LastMessageID != "" {
			var last message
			err := pg.bun.NewSelect().
				Model(&last).
				Relation("Sender").
				Relation("Reactions").
				Where("message.id = ?", c.LastMessageID).
				Scan(ctx)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("scan last message: %w", err)
			}
			if err == nil {
				msg := last.APIMessage()
				summary.LastMessage = &msg
			}
		}

		count, err := pg.bun.NewSelect().
			Model((*message)(nil)).
			Where("conversation_id = ?", c.ID).
			Where("sender_id != ?", userID).
			Where("created_at > ?", lastSeen).
			Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("count unread: %w", err)
		}
		summary.UnreadCount = count

		out = append(out, summary)
	}
	return out, nil
}

// InsertMessage appends a message and bumps the conversation's last-message
// pointer in the same transaction; either both happen or neither does.
func (pg *Postgres) InsertMessage(ctx context.Context, conversationID, senderID, content string) (api.Message, error) {
	m := &message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           api.MessageTypeText,
		CreatedAt:      time.Now(),
	}
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*conversation)(nil)).
			Where("id = ?", conversationID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check conversation: %w", err)
		}
		if !exists {
			return api.ErrConversationNotFound
		}

		if _, err := tx.NewInsert().Model(m).Returning("*").Exec(ctx); err != nil {
			return fmt.Errorf("insert: %w", err)
		}

		_, err = tx.NewUpdate().
			Model((*conversation)(nil)).
			Set("last_message_id = ?", m.ID).
			Set("last_message_at = ?", m.CreatedAt).
			Where("id = ?", conversationID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return api.Message{}, err
	}

	return pg.getMessage(ctx, m.ID)
}

// ListMessages returns the conversation's messages, oldest first, each with
// the sender row and reactions joined.
func (pg *Postgres) ListMessages(ctx context.Context, conversationID string) ([]api.Message, error) {
	var msgs []message
	err := pg.bun.NewSelect().
		Model(&msgs).
		Relation("Sender").
		Relation("Reactions").
		Where("message.conversation_id = ?", conversationID).
		OrderExpr("message.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]api.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.APIMessage()
	}
	return out, nil
}

// SoftDeleteMessage overwrites the content with the placeholder and flips the
// type to deleted. Only the sender may delete; the content is gone for good.
func (pg *Postgres) SoftDeleteMessage(ctx context.Context, messageID, callerID string) (api.Message, error) {
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var m message
		err := tx.NewSelect().
			Model(&m).
			Column("id", "sender_id").
			Where("id = ?", messageID).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return api.ErrMessageNotFound
		}
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if m.SenderID != callerID {
			return api.ErrNotMessageSender
		}

		_, err = tx.NewUpdate().
			Model((*message)(nil)).
			Set("content = ?", api.DeletedPlaceholder).
			Set("type = ?", api.MessageTypeDeleted).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", messageID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		return nil
	})
	if err != nil {
		return api.Message{}, err
	}

	return pg.getMessage(ctx, messageID)
}

// ToggleReaction removes the (user, emoji) pair when present, else adds it.
// Returns the refreshed message and whether the reaction ended up added.
func (pg *Postgres) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (api.Message, bool, error) {
	var added bool
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*message)(nil)).
			Where("id = ?", messageID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check message: %w", err)
		}
		if !exists {
			return api.ErrMessageNotFound
		}

		res, err := tx.NewDelete().
			Model((*reaction)(nil)).
			Where("message_id = ?", messageID).
			Where("user_id = ?", userID).
			Where("emoji = ?", emoji).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete reaction: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n > 0 {
			return nil
		}

		r := &reaction{
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
			CreatedAt: time.Now(),
		}
		if _, err := tx.NewInsert().Model(r).Exec(ctx); err != nil {
			return fmt.Errorf("insert reaction: %w", err)
		}
		added = true
		return nil
	})
	if err != nil {
		return api.Message{}, false, err
	}

	msg, err := pg.getMessage(ctx, messageID)
	if err != nil {
		return api.Message{}, false, err
	}
	return msg, added, nil
}

func (pg *Postgres) getMessage(ctx context.Context, messageID string) (api.Message, error) {
	var m message
	err := pg.bun.NewSelect().
		Model(&m).
		Relation("Sender").
		Relation("Reactions").
		Where("message.id = ?", messageID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return api.Message{}, api.ErrMessageNotFound
	}
	if err != nil {
		return api.Message{}, fmt.Errorf("scan: %w", err)
	}
	return m.APIMessage(), nil
}
