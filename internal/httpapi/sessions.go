package httpapi

import (
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// SessionsHandler exposes a user's own conversation history. Ownership
// is enforced on every route: callers only ever see their sessions.
type SessionsHandler struct {
	sessions store.SessionStore
	auth     *Authenticator
}

// NewSessionsHandler creates the sessions endpoint handler.
func NewSessionsHandler(sessions store.SessionStore, auth *Authenticator) *SessionsHandler {
	return &SessionsHandler{sessions: sessions, auth: auth}
}

// RegisterRoutes registers the session routes on the given mux.
func (h *SessionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/sessions", h.auth.Middleware(h.handleList))
	mux.HandleFunc("GET /v1/sessions/{id}", h.auth.Middleware(h.handleGet))
	mux.HandleFunc("POST /v1/sessions/{id}/close", h.auth.Middleware(h.handleClose))
}

func (h *SessionsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	opts := store.SessionListOpts{
		Status: r.URL.Query().Get("status"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}

	result, err := h.sessions.List(r.Context(), user.UserID, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *SessionsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	sessionID := r.PathValue("id")

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if sess.UserID != user.UserID {
		// Do not reveal that the session exists at all.
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}

	turns, err := h.sessions.Turns(r.Context(), sessionID, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": sess,
		"turns":   turns,
	})
}

func (h *SessionsHandler) handleClose(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	sessionID := r.PathValue("id")

	closed, err := h.sessions.Close(r.Context(), sessionID, user.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !closed {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": store.SessionClosed})
}
