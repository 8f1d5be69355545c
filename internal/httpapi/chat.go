package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nextlevelbuilder/agentgate/internal/agent"
	"github.com/nextlevelbuilder/agentgate/internal/providers"
	"github.com/nextlevelbuilder/agentgate/internal/routing"
	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// ChatHandler serves conversation turns. The serving agent is picked
// per request from the caller's groups unless an explicit agent key is
// given.
type ChatHandler struct {
	orch     *agent.Orchestrator
	router   *routing.AgentRouter
	agents   store.AgentStore
	auth     *Authenticator
	maxChars int
	allow    func(userID string) bool // nil = no rate limit
}

// NewChatHandler creates the chat endpoint handler.
func NewChatHandler(orch *agent.Orchestrator, router *routing.AgentRouter, agents store.AgentStore, auth *Authenticator, maxChars int) *ChatHandler {
	return &ChatHandler{orch: orch, router: router, agents: agents, auth: auth, maxChars: maxChars}
}

// SetRateLimiter installs a per-user admission check.
func (h *ChatHandler) SetRateLimiter(allow func(userID string) bool) {
	h.allow = allow
}

// RegisterRoutes registers the chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/chat", h.auth.Middleware(h.handleChat))
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	AgentKey  string `json:"agent_key,omitempty"`
	Stream    bool   `json:"stream,omitempty"`
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	if h.allow != nil && !h.allow(user.UserID) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}
	if h.maxChars > 0 && len(req.Message) > h.maxChars {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("message exceeds %d characters", h.maxChars)})
		return
	}

	target, err := h.pickAgent(r, req.AgentKey, user.Groups)
	if err != nil {
		writeError(w, err)
		return
	}

	invokeReq := agent.InvokeRequest{
		Agent:     target,
		UserID:    user.UserID,
		SessionID: req.SessionID,
		Message:   req.Message,
	}

	if req.Stream {
		h.streamChat(w, r, invokeReq)
		return
	}

	result, err := h.orch.Invoke(r.Context(), invokeReq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": result.SessionID,
		"agent_key":  target.AgentKey,
		"content":    result.Content,
		"usage":      result.Usage,
	})
}

// streamChat delivers the reply as Server-Sent Events. The final event
// carries the session id so a new conversation can be continued.
func (h *ChatHandler) streamChat(w http.ResponseWriter, r *http.Request, req agent.InvokeRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sendEvent := func(v interface{}) {
		data, _ := json.Marshal(v)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	result, err := h.orch.InvokeStream(r.Context(), req, func(chunk providers.StreamChunk) {
		if chunk.Content != "" {
			sendEvent(map[string]string{"delta": chunk.Content})
		}
	})
	if err != nil {
		sendEvent(map[string]string{"error": err.Error()})
		return
	}
	sendEvent(map[string]interface{}{
		"done":       true,
		"session_id": result.SessionID,
		"usage":      result.Usage,
	})
}

// pickAgent resolves the serving agent: an explicit key must name an
// enabled agent; otherwise the weighted group routing decides.
func (h *ChatHandler) pickAgent(r *http.Request, agentKey string, groups []string) (*store.AgentData, error) {
	if agentKey == "" {
		return h.router.AgentForGroups(r.Context(), groups)
	}
	a, err := h.agents.GetByKey(r.Context(), agentKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("agent %q: %w", agentKey, store.ErrNotFound)
		}
		return nil, err
	}
	if !a.Enabled {
		return nil, fmt.Errorf("agent %q: %w", agentKey, store.ErrNotFound)
	}
	return a, nil
}
