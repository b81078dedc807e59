package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pairchat/pairchat/api/events"
)

func TestAPI_sendMessage(t *testing.T) {
	sent := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	alice := User{ID: "u1", ExternalID: "ext_1", Email: "alice@example.com", Name: "alice", LastSeen: sent}

	tests := []struct {
		name       string
		authz      string
		req        string
		db         *testdb
		wantStatus int
		wantBody   string
	}{
		{
			name:       "NoToken",
			req:        `{"content": "hi"}`,
			db:         &testdb{},
			wantStatus: 401,
			wantBody: `{
				"error": "Not authenticated"
			}`,
		},
		{
			name:       "InvalidJSON",
			authz:      "valid",
			req:        `not json`,
			db:         &testdb{},
			wantStatus: 400,
			wantBody: `{
				"error": "Could not decode request body"
			}`,
		},
		{
			name:  "SenderNotFound",
			authz: "valid",
			req:   `{"content": "hi"}`,
			db: &testdb{
				getUserByExternalID: func(t *testing.T, externalID string) (User, error) {
					return User{}, ErrUserNotFound
				},
			},
			wantStatus: 404,
			wantBody: `{
				"error": "Sender not found"
			}`,
		},
		{
			name:  "ConversationNotFound",
			authz: "valid",
			req:   `{"content": "hi"}`,
			db: &testdb{
				getUserByExternalID: func(t *testing.T, externalID string) (User, error) {
					return alice, nil
				},
				insertMessage: func(t *testing.T, conversationID, senderID, content string) (Message, error) {
					return Message{}, ErrConversationNotFound
				},
			},
			wantStatus: 404,
			wantBody: `{
				"error": "conversation not found"
			}`,
		},
		{
			name:  "OK",
			authz: "valid",
			req:   `{"content": "hi"}`,
			db: &testdb{
				getUserByExternalID: func(t *testing.T, externalID string) (User, error) {
					if externalID != "ext_1" {
						t.Errorf("Got externalID %q, want ext_1", externalID)
					}
					return alice, nil
				},
				insertMessage: func(t *testing.T, conversationID, senderID, content string) (Message, error) {
					if conversationID != "c1" {
						t.Errorf("Got conversationID %q, want c1", conversationID)
					}
					if senderID != "u1" {
						t.Errorf("Got senderID %q, want u1", senderID)
					}
					if content != "hi" {
						t.Errorf("Got content %q, want hi", content)
					}
					return Message{
						ID:             "m1",
						ConversationID: conversationID,
						SenderID:       senderID,
						Sender:         &alice,
						Content:        content,
						Type:           MessageTypeText,
						Reactions:      []Reaction{},
						CreatedAt:      sent,
					}, nil
				},
			},
			wantStatus: 201,
			wantBody: `{
				"id": "m1",
				"conversation_id": "c1",
				"sender_id": "u1",
				"sender": {
					"id": "u1",
					"external_id": "ext_1",
					"email": "alice@example.com",
					"name": "alice",
					"is_online": false,
					"last_seen": "2024-01-02T00:00:00Z"
				},
				"content": "hi",
				"type": "text",
				"reactions": [],
				"created_at": "2024-01-02T00:00:00Z",
				"updated_at": "0001-01-01T00:00:00Z"
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t, tt.db, nil)
			srv := httptest.NewServer(a)
			defer srv.Close()

			feed, cancel := a.Hub.Subscribe("c1")
			defer cancel()

			req, _ := http.NewRequest("POST", srv.URL+"/conversations/c1/messages", strings.NewReader(tt.req))
			if tt.authz == "valid" {
				req.Header.Set("Authorization", bearer(t, "ext_1", "alice@example.com", "alice"))
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)

			if tt.wantStatus == 201 {
				select {
				case evt := <-feed:
					if evt.Type != events.MessageNew {
						t.Errorf("Got event type %q, want message.new", evt.Type)
					}
				case <-time.After(time.Second):
					t.Error("no message.new event published")
				}
			}
		})
	}
}

func TestAPI_listMessages(t *testing.T) {
	sent := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	alice := User{ID: "u1", ExternalID: "ext_1", Email: "alice@example.com", Name: "alice", LastSeen: sent}

	t.Run("FailClosedWithoutToken", func(t *testing.T) {
		// No identity: empty list, not an error, and storage is never hit.
		a := newTestAPI(t, &testdb{}, nil)
		srv := httptest.NewServer(a)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/conversations/c1/messages")
		if err != nil {
			t.Fatal(err)
		}
		checkStatus(t, resp.StatusCode, 200)
		checkBody(t, resp, `{
			"messages": []
		}`)
	})

	t.Run("OK", func(t *testing.T) {
		db := &testdb{
			listMessages: func(t *testing.T, conversationID string) ([]Message, error) {
				if conversationID != "c1" {
					t.Errorf("Got conversationID %q, want c1", conversationID)
				}
				return []Message{
					{ID: "m1", ConversationID: "c1", SenderID: "u1", Sender: &alice, Content: "hi", Type: MessageTypeText, Reactions: []Reaction{}, CreatedAt: sent},
					{ID: "m2", ConversationID: "c1", SenderID: "u1", Sender: &alice, Content: "there", Type: MessageTypeText, Reactions: []Reaction{}, CreatedAt: sent.Add(time.Minute)},
				}, nil
			},
		}
		a := newTestAPI(t, db, nil)
		srv := httptest.NewServer(a)
		defer srv.Close()

		req, _ := http.NewRequest("GET", srv.URL+"/conversations/c1/messages", nil)
		req.Header.Set("Authorization", bearer(t, "ext_1", "alice@example.com", "alice"))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		checkStatus(t, resp.StatusCode, 200)

		var body struct {
			Messages []Message `json:"messages"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if len(body.Messages) != 2 {
			t.Fatalf("got %d messages, want 2", len(body.Messages))
		}
		if !body.Messages[0].CreatedAt.Before(body.Messages[1].CreatedAt) {
			t.Error("messages not in ascending created_at order")
		}
		for _, m := range body.Messages {
			if m.Sender == nil || m.Sender.ID != m.SenderID {
				t.Errorf("message %s sender not resolved", m.ID)
			}
		}
	})

	t.Run("DBError", func(t *testing.T) {
		db := &testdb{
			listMessages: func(t *testing.T, conversationID string) ([]Message, error) {
				return nil, errors.New("something went wrong")
			},
		}
		a := newTestAPI(t, db, nil)
		srv := httptest.NewServer(a)
		defer srv.Close()

		req, _ := http.NewRequest("GET", srv.URL+"/conversations/c1/messages", nil)
		req.Header.Set("Authorization", bearer(t, "ext_1", "alice@example.com", "alice"))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		checkStatus(t, resp.StatusCode, 500)
		checkBody(t, resp, `{
			"error": "Could not list messages"
		}`)
	})
}

func TestAPI_deleteMessage(t *testing.T) {
	sent := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	alice := User{ID: "u1", ExternalID: "ext_1", Email: "alice@example.com", Name: "alice", LastSeen: sent}

	tests := []struct {
		name       string
		authz      string
		db         *testdb
		wantStatus int
		wantBody   string
	}{
		{
			name:       "NoToken",
			db:         &testdb{},
			wantStatus: 401,
			wantBody: `{
				"error": "Not authenticated"
			}`,
		},
		{
			name:  "NotFound",
			authz: "valid",
			db: &testdb{
				getUserByExternalID: func(t *testing.T, externalID string) (User, error) {
					return alice, nil
				},
				softDeleteMessage: func(t *testing.T, messageID, callerID string) (Message, error) {
					return Message{}, ErrMessageNotFound
				},
			},
			wantStatus: 404,
			wantBody: `{
				"error": "message not found"
			}`,
		},
		{
			name:  "Forbidden",
			authz: "valid",
			db: &testdb{
				getUserByExternalID: func(t *testing.T, externalID string) (User, error) {
					return alice, nil
				},
				softDeleteMessage: func(t *testing.T, messageID, callerID string) (Message, error) {
					return Message{}, ErrNotMessageSender
				},
			},
			wantStatus: 403,
			wantBody: `{
				"error": "caller is not the message sender"
			}`,
		},
		{
			name:  "OK",
			authz: "valid",
			db: &testdb{
				getUserByExternalID: func(t *testing.T, externalID string) (User, error) {
					return alice, nil
				},
				softDeleteMessage: func(t *testing.T, messageID, callerID string) (Message, error) {
					if messageID != "m1" {
						t.Errorf("Got messageID %q, want m1", messageID)
					}
					if callerID != "u1" {
						t.Errorf("Got callerID %q, want u1", callerID)
					}
					return Message{
						ID:             "m1",
						ConversationID: "c1",
						SenderID:       "u1",
						Content:        DeletedPlaceholder,
						Type:           MessageTypeDeleted,
						Reactions:      []Reaction{},
						CreatedAt:      sent,
						UpdatedAt:      sent.Add(time.Minute),
					}, nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"id": "m1",
				"conversation_id": "c1",
				"sender_id": "u1",
				"content": "This message was deleted",
				"type": "deleted",
				"reactions": [],
				"created_at": "2024-01-02T00:00:00Z",
				"updated_at": "2024-01-02T00:01:00Z"
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t, tt.db, nil)
			srv := httptest.NewServer(a)
			defer srv.Close()

			feed, cancel := a.Hub.Subscribe("c1")
			defer cancel()

			req, _ := http.NewRequest("DELETE", srv.URL+"/messages/m1", nil)
			if tt.authz == "valid" {
				req.Header.Set("Authorization", bearer(t, "ext_1", "alice@example.com", "alice"))
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)

			if tt.wantStatus == 200 {
				select {
				case evt := <-feed:
					if evt.Type != events.MessageDeleted {
						t.Errorf("Got event type %q, want message.deleted", evt.Type)
					}
				case <-time.After(time.Second):
					t.Error("no message.deleted event published")
				}
			}
		})
	}
}

func TestAPI_toggleReaction(t *testing.T) {
	alice := User{ID: "u1", ExternalID: "ext_1", Email: "alice@example.com", Name: "alice"}

	t.Run("MissingMessageIsNoOp", func(t *testing.T) {
		db := &testdb{
			getUserByExternalID: func(t *testing.T, externalID string) (User, error) {
				return alice, nil
			},
			toggleReaction: func(t *testing.T, messageID, userID, emoji string) (Message, bool, error) {
				return Message{}, false, ErrMessageNotFound
			},
		}
		a := newTestAPI(t, db, nil)
		srv := httptest.NewServer(a)
		defer srv.Close()

		req, _ := http.NewRequest("POST", srv.URL+"/messages/m1/reactions", strings.NewReader(`{"emoji": "👍"}`))
		req.Header.Set("Authorization", bearer(t, "ext_1", "alice@example.com", "alice"))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		checkStatus(t, resp.StatusCode, 204)
	})

	t.Run("MissingCallerIsNoOp", func(t *testing.T) {
		db := &testdb{
			getUserByExternalID: func(t *testing.T, externalID string) (User, error) {
				return User{}, ErrUserNotFound
			},
		}
		a := newTestAPI(t, db, nil)
		srv := httptest.NewServer(a)
		defer srv.Close()

		req, _ := http.NewRequest("POST", srv.URL+"/messages/m1/reactions", strings.NewReader(`{"emoji": "👍"}`))
		req.Header.Set("Authorization", bearer(t, "ext_1", "alice@example.com", "alice"))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		checkStatus(t, resp.StatusCode, 204)
	})

	t.Run("DoubleToggleRestoresState", func(t *testing.T) {
		reactions := make(map[string]bool)
		db := &testdb{
			getUserByExternalID: func(t *testing.T, externalID string) (User, error) {
				return alice, nil
			},
			toggleReaction: func(t *testing.T, messageID, userID, emoji string) (Message, bool, error) {
				key := userID + ":" + emoji
				if reactions[key] {
					delete(reactions, key)
					return Message{ID: messageID, ConversationID: "c1"}, false, nil
				}
				reactions[key] = true
				return Message{ID: messageID, ConversationID: "c1"}, true, nil
			},
		}
		a := newTestAPI(t, db, nil)
		srv := httptest.NewServer(a)
		defer srv.Close()

		toggle := func() bool {
			t.Helper()
			req, _ := http.NewRequest("POST", srv.URL+"/messages/m1/reactions", strings.NewReader(`{"emoji": "👍"}`))
			req.Header.Set("Authorization", bearer(t, "ext_1", "alice@example.com", "alice"))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, 200)
			var out struct {
				Added bool `json:"added"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Fatal(err)
			}
			return out.Added
		}

		if !toggle() {
			t.Error("first toggle should add the reaction")
		}
		if toggle() {
			t.Error("second toggle should remove the reaction")
		}
		if len(reactions) != 0 {
			t.Errorf("reactions not restored to original state: %v", reactions)
		}
	})

	t.Run("TwoUsersSameEmoji", func(t *testing.T) {
		bob := User{ID: "u2", ExternalID: "ext_2", Email: "bob@example.com", Name: "bob"}
		users := map[string]User{
			alice.ExternalID: alice,
			bob.ExternalID:   bob,
		}
		reactions := make(map[string]bool)
		db := &testdb{
			getUserByExternalID: func(t *testing.T, externalID string) (User, error) {
				u, ok := users[externalID]
				if !ok {
					return User{}, ErrUserNotFound
				}
				return u, nil
			},
			toggleReaction: func(t *testing.T, messageID, userID, emoji string) (Message, bool, error) {
				key := userID + ":" + emoji
				if reactions[key] {
					delete(reactions, key)
					return Message{ID: messageID, ConversationID: "c1"}, false, nil
				}
				reactions[key] = true
				return Message{ID: messageID, ConversationID: "c1"}, true, nil
			},
		}
		a := newTestAPI(t, db, nil)
		srv := httptest.NewServer(a)
		defer srv.Close()

		toggle := func(u User) bool {
			t.Helper()
			req, _ := http.NewRequest("POST", srv.URL+"/messages/m1/reactions", strings.NewReader(`{"emoji": "👍"}`))
			req.Header.Set("Authorization", bearer(t, u.ExternalID, u.Email, u.Name))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, 200)
			var out struct {
				Added bool `json:"added"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Fatal(err)
			}
			return out.Added
		}

		if !toggle(alice) {
			t.Error("alice's toggle should add a reaction")
		}
		if !toggle(bob) {
			t.Error("bob's toggle should add a second reaction, not remove alice's")
		}
		if len(reactions) != 2 {
			t.Errorf("got %d reactions, want one per user", len(reactions))
		}
		for _, key := range []string{"u1:👍", "u2:👍"} {
			if !reactions[key] {
				t.Errorf("missing reaction entry %q", key)
			}
		}
	})
}
