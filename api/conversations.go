package api

import (
	"encoding/json"
	"net/http"
)

// getOrCreateConversation returns the one direct conversation for a pair of
// users, creating it on first contact. The storage layer makes the
// find-or-insert atomic, so concurrent first contacts converge on a single
// conversation.
func (a *API) getOrCreateConversation(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			UserID      string `json:"user_id" validate:"required"`
			OtherUserID string `json:"other_user_id" validate:"required"`
		}
		response struct {
			ConversationID string `json:"conversation_id"`
		}
	)

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}

	if valid := a.validateBody(w, &body); !valid {
		return
	}

	if body.UserID == body.OtherUserID {
		a.respond(w, http.StatusBadRequest, map[string]string{
			"error": "a conversation needs two distinct users",
		})
		return
	}

	convID, err := a.DB.GetOrCreateConversation(r.Context(), body.UserID, body.OtherUserID)
	if err != nil {
		a.respondStorageError(w, err, "Could not get or create conversation")
		return
	}

	a.respond(w, http.StatusOK, response{ConversationID: convID})
}

// listConversations returns the sidebar view for a user: every conversation
// they participate in, annotated with the other participant, the latest
// message and an unread count, newest activity first.
func (a *API) listConversations(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Conversations []ConversationSummary `json:"conversations"`
	}

	userID := r.URL.Query().Get("user_id")
	if errs := a.Val.Validate(userID, "required"); len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	convs, err := a.DB.ListConversationsForUser(r.Context(), userID)
	if err != nil {
		a.respondStorageError(w, err, "Could not list conversations")
		return
	}

	if convs == nil {
		convs = []ConversationSummary{}
	}
	a.respond(w, http.StatusOK, response{Conversations: convs})
}
