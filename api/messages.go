package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pairchat/pairchat/api/events"
	"github.com/pairchat/pairchat/metrics"
)

// sendMessage appends a message to a conversation. The sender is resolved
// server-side from the identity token; inserting the row and bumping the
// conversation's last-message pointer happen in one transaction.
func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Content string `json:"content" validate:"required"`
	}

	id, ok := a.identity(w, r)
	if !ok {
		return
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

	sender, err := a.DB.GetUserByExternalID(r.Context(), id.ExternalID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			a.respondError(w, http.StatusNotFound, err, "Sender not found")
			return
		}
		a.respondStorageError(w, err, "Could not resolve sender")
		return
	}

	msg, err := a.DB.InsertMessage(r.Context(), conversationID, sender.ID, body.Content)
	if err != nil {
		a.respondStorageError(w, err, "Could not insert message")
		return
	}

	metrics.MessagesSent.Inc()
	a.Hub.Publish(events.Event{
		Type:           events.MessageNew,
		ConversationID: conversationID,
		Payload:        msg,
	})

	a.respond(w, http.StatusCreated, msg)
}

// listMessages returns the conversation's messages in ascending time order,
// each with its sender and reactions embedded. Without a verified caller it
// returns an empty list rather than an error, so an unauthenticated probe
// cannot tell an empty conversation from a denied one.
func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Messages []Message `json:"messages"`
	}

	if _, err := a.Auth.FromRequest(r); err != nil {
		a.respond(w, http.StatusOK, response{Messages: []Message{}})
		return
	}

	msgs, err := a.DB.ListMessages(r.Context(), r.PathValue("conversationID"))
	if err != nil {
		a.respondStorageError(w, err, "Could not list messages")
		return
	}

	if msgs == nil {
		msgs = []Message{}
	}
	a.respond(w, http.StatusOK, response{Messages: msgs})
}

// deleteMessage soft-deletes: the content is replaced with the placeholder
// and the type flips to deleted. Only the original sender may do this.
func (a *API) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}

	caller, err := a.DB.GetUserByExternalID(r.Context(), id.ExternalID)
	if err != nil {
		a.respondStorageError(w, err, "Could not resolve caller")
		return
	}

	messageID := r.PathValue("messageID")
	msg, err := a.DB.SoftDeleteMessage(r.Context(), messageID, caller.ID)
	if err != nil {
		a.respondStorageError(w, err, "Could not delete message")
		return
	}

	a.Hub.Publish(events.Event{
		Type:           events.MessageDeleted,
		ConversationID: msg.ConversationID,
		Payload:        msg,
	})

	a.respond(w, http.StatusOK, msg)
}

// toggleReaction adds the caller's (emoji) reaction to a message, or removes
// it when already present. A missing message or caller record makes the call
// a no-op, matching the forgiving contract of the reaction surface.
func (a *API) toggleReaction(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			Emoji string `json:"emoji" validate:"required"`
		}
		response struct {
			MessageID string `json:"message_id"`
			Emoji     string `json:"emoji"`
			Added     bool   `json:"added"`
		}
	)

	id, ok := a.identity(w, r)
	if !ok {
		return
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}

	if valid := a.validateBody(w, &body); !valid {
		return
	}

	caller, err := a.DB.GetUserByExternalID(r.Context(), id.ExternalID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		a.respondStorageError(w, err, "Could not resolve caller")
		return
	}

	messageID := r.PathValue("messageID")
	msg, added, err := a.DB.ToggleReaction(r.Context(), messageID, caller.ID, body.Emoji)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		a.respondStorageError(w, err, "Could not toggle reaction")
		return
	}

	a.Hub.Publish(events.Event{
		Type:           events.ReactionToggled,
		ConversationID: msg.ConversationID,
		Payload:        msg,
	})

	a.respond(w, http.StatusOK, response{
		MessageID: messageID,
		Emoji:     body.Emoji,
		Added:     added,
	})
}
