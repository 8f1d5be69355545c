package httpapi

import (
	"net/http"

	"github.com/nextlevelbuilder/agentgate/internal/routing"
)

// AgentsHandler exposes agent discovery: which agents the caller's
// group memberships can reach, and which one would serve them.
type AgentsHandler struct {
	router *routing.AgentRouter
	auth   *Authenticator
}

// NewAgentsHandler creates the agent discovery handler.
func NewAgentsHandler(router *routing.AgentRouter, auth *Authenticator) *AgentsHandler {
	return &AgentsHandler{router: router, auth: auth}
}

// RegisterRoutes registers the agent discovery routes on the given mux.
func (h *AgentsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/agents/available", h.auth.Middleware(h.handleAvailable))
	mux.HandleFunc("GET /v1/agents/resolve", h.auth.Middleware(h.handleResolve))
}

type availableAgent struct {
	AgentKey    string `json:"agent_key"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	AreaType    string `json:"area_type"`
	Weight      int    `json:"weight"`
	GroupName   string `json:"group_name,omitempty"`
}

func (h *AgentsHandler) handleAvailable(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	ranked, err := h.router.AvailableAgents(r.Context(), user.Groups)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]availableAgent, 0, len(ranked))
	for _, ra := range ranked {
		out = append(out, availableAgent{
			AgentKey:    ra.Agent.AgentKey,
			Name:        ra.Agent.Name,
			Description: ra.Agent.Description,
			AreaType:    ra.Agent.AreaType,
			Weight:      ra.Weight,
			GroupName:   ra.GroupName,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": out})
}

func (h *AgentsHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	a, err := h.router.AgentForGroups(r.Context(), user.Groups)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_key": a.AgentKey,
		"name":      a.Name,
		"area_type": a.AreaType,
	})
}
