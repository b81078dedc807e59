package api

import (
	"encoding/json"
	"net/http"

	"github.com/pairchat/pairchat/api/events"
)

// setTyping upserts the caller-supplied typing flag for one (conversation,
// user) pair. The presence store stamps the update time; readers apply a
// staleness cutoff, so a flag left behind by a crashed client expires on its
// own.
func (a *API) setTyping(w http.ResponseWriter, r *http.Request) {
	type request struct {
		UserID   string `json:"user_id" validate:"required"`
		IsTyping bool   `json:"is_typing"`
	}

	conversationID := r.PathValue("conversationID")

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}

	if valid := a.validateBody(w, &body); !valid {
		return
	}

	if err := a.Presence.SetTyping(r.Context(), conversationID, body.UserID, body.IsTyping); err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not update typing state")
		return
	}

	a.Hub.Publish(events.Event{
		Type:           events.Typing,
		ConversationID: conversationID,
		Payload: map[string]any{
			"user_id":   body.UserID,
			"is_typing": body.IsTyping,
		},
	})

	w.WriteHeader(http.StatusNoContent)
}

// listTyping returns the user records currently composing in a conversation,
// excluding the user named by ?exclude= so callers never see themselves.
func (a *API) listTyping(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Users []User `json:"users"`
	}

	conversationID := r.PathValue("conversationID")
	exclude := r.URL.Query().Get("exclude")

	ids, err := a.Presence.TypingUserIDs(r.Context(), conversationID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list typing users")
		return
	}

	filtered := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != exclude {
			filtered = append(filtered, id)
		}
	}

	users := []User{}
	if len(filtered) > 0 {
		users, err = a.DB.GetUsersByIDs(r.Context(), filtered)
		if err != nil {
			a.respondStorageError(w, err, "Could not resolve typing users")
			return
		}
	}

	a.respond(w, http.StatusOK, response{Users: users})
}
