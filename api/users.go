package api

import (
	"encoding/json"
	"net/http"
)

// upsertUser records a sign-in: the first call creates the user, later calls
// refresh last-seen and flip the online flag. The identity token is the only
// source of who signed in.
func (a *API) upsertUser(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}

	user, err := a.DB.UpsertUser(r.Context(), id.ExternalID, id.Email, id.Name)
	if err != nil {
		a.respondStorageError(w, err, "Could not upsert user")
		return
	}

	a.respond(w, http.StatusOK, user)
}

// updateStatus flips the caller's online flag. Clients call this with
// is_online=false on tab hide or unload; it is best-effort, since a killed
// browser sends nothing, and the flag simply stays stale until the next
// sign-in.
func (a *API) updateStatus(w http.ResponseWriter, r *http.Request) {
	type request struct {
		IsOnline bool `json:"is_online"`
	}

	id, ok := a.identity(w, r)
	if !ok {
		return
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}

	user, err := a.DB.SetUserStatus(r.Context(), id.ExternalID, body.IsOnline)
	if err != nil {
		a.respondStorageError(w, err, "Could not update status")
		return
	}

	a.respond(w, http.StatusOK, user)
}

// currentUser resolves "who am I" for the verified caller.
func (a *API) currentUser(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}

	user, err := a.DB.GetUserByExternalID(r.Context(), id.ExternalID)
	if err != nil {
		a.respondStorageError(w, err, "Could not get user")
		return
	}

	a.respond(w, http.StatusOK, user)
}

// listUsers returns the whole directory, or a name search when ?search= is
// present. Searches exclude the caller when a valid token is attached.
func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Users []User `json:"users"`
	}

	term := r.URL.Query().Get("search")

	var (
		users []User
		err   error
	)
	if term == "" {
		users, err = a.DB.ListUsers(r.Context())
	} else {
		var excludeID string
		if id, authErr := a.Auth.FromRequest(r); authErr == nil {
			if me, meErr := a.DB.GetUserByExternalID(r.Context(), id.ExternalID); meErr == nil {
				excludeID = me.ID
			}
		}
		users, err = a.DB.SearchUsers(r.Context(), term, excludeID)
	}
	if err != nil {
		a.respondStorageError(w, err, "Could not list users")
		return
	}

	if users == nil {
		users = []User{}
	}
	a.respond(w, http.StatusOK, response{Users: users})
}
