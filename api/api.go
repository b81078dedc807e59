// Package api exposes the chat service over HTTP: the user directory, the
// conversation directory, the message log, typing presence and the live
// event feeds.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pairchat/pairchat/api/auth"
	"github.com/pairchat/pairchat/api/events"
)

// A DB provides the storage layer for users, conversations and messages.
// Implementations return the package sentinel errors for missing rows and
// must apply each mutation atomically: an error means nothing was written.
type DB interface {
	UpsertUser(ctx context.Context, externalID, email, name string) (User, error)
	SetUserStatus(ctx context.Context, externalID string, online bool) (User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SearchUsers(ctx context.Context, term, excludeUserID string) ([]User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]User, error)

	GetOrCreateConversation(ctx context.Context, userA, userB string) (string, error)
	ListConversationsForUser(ctx context.Context, userID string) ([]ConversationSummary, error)

	InsertMessage(ctx context.Context, conversationID, senderID, content string) (Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	SoftDeleteMessage(ctx context.Context, messageID, callerID string) (Message, error)
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (msg Message, added bool, err error)
}

// A Presence tracks which users are typing in a conversation. Stale entries
// are the implementation's problem; TypingUserIDs must only return users that
// signalled recently.
type Presence interface {
	SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error
	TypingUserIDs(ctx context.Context, conversationID string) ([]string, error)
}

// API provides the REST and websocket endpoints for the application.
type API struct {
	Logger   *slog.Logger
	DB       DB
	Presence Presence
	Hub      *events.Hub
	Auth     *auth.Verifier
	Val      *Validator

	once sync.Once
	mux  *http.ServeMux
}

func (a *API) setupRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /users", a.upsertUser)
	mux.HandleFunc("GET /users", a.listUsers)
	mux.HandleFunc("GET /users/me", a.currentUser)
	mux.HandleFunc("PUT /users/me/status", a.updateStatus)

	mux.HandleFunc("POST /conversations", a.getOrCreateConversation)
	mux.HandleFunc("GET /conversations", a.listConversations)

	mux.HandleFunc("GET /conversations/{conversationID}/messages", a.listMessages)
	mux.HandleFunc("POST /conversations/{conversationID}/messages", a.sendMessage)
	mux.HandleFunc("DELETE /messages/{messageID}", a.deleteMessage)
	mux.HandleFunc("POST /messages/{messageID}/reactions", a.toggleReaction)

	mux.HandleFunc("PUT /conversations/{conversationID}/typing", a.setTyping)
	mux.HandleFunc("GET /conversations/{conversationID}/typing", a.listTyping)

	mux.HandleFunc("GET /conversations/{conversationID}/events", a.conversationEvents)

	a.mux = mux
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)
	a.mux.ServeHTTP(w, r)
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	a.Logger.Error("Error", "error", err.Error())
	a.respond(w, status, response{Error: msg})
}

// respondStorageError maps the storage sentinels onto status codes; anything
// unrecognized is a 500 with a generic message.
func (a *API) respondStorageError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrConversationNotFound),
		errors.Is(err, ErrMessageNotFound):
		a.respondError(w, http.StatusNotFound, err, err.Error())
	case errors.Is(err, ErrNotMessageSender):
		a.respondError(w, http.StatusForbidden, err, err.Error())
	default:
		a.respondError(w, http.StatusInternalServerError, err, msg)
	}
}

func (a *API) validateBody(w http.ResponseWriter, s interface{}) bool {
	errs := a.Val.ValidateStruct(s)
	type response struct {
		Errors []ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return false
	}
	return true
}

// identity resolves the verified caller, writing a 401 when the token is
// absent or bad.
func (a *API) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, err := a.Auth.FromRequest(r)
	if err != nil {
		a.respondError(w, http.StatusUnauthorized, err, "Not authenticated")
		return auth.Identity{}, false
	}
	return id, true
}
