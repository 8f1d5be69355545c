package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/agentgate/internal/rbac"
	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// RBACAdminHandler exposes RBAC administration: the superadmin
// whitelist, group→role mappings, role definitions, and the audit log.
// Authorization is enforced by the rbac service, not here.
type RBACAdminHandler struct {
	rbac *rbac.Service
	auth *Authenticator
}

// NewRBACAdminHandler creates the RBAC admin handler.
func NewRBACAdminHandler(svc *rbac.Service, auth *Authenticator) *RBACAdminHandler {
	return &RBACAdminHandler{rbac: svc, auth: auth}
}

// RegisterRoutes registers all RBAC admin routes on the given mux.
func (h *RBACAdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/admin/superadmins", h.auth.Middleware(h.handleListSuperadmins))
	mux.HandleFunc("POST /v1/admin/superadmins", h.auth.Middleware(h.handleAddSuperadmin))
	mux.HandleFunc("DELETE /v1/admin/superadmins/{email}", h.auth.Middleware(h.handleRemoveSuperadmin))

	mux.HandleFunc("GET /v1/admin/role-mappings", h.auth.Middleware(h.handleListMappings))
	mux.HandleFunc("POST /v1/admin/role-mappings", h.auth.Middleware(h.handleCreateMapping))
	mux.HandleFunc("GET /v1/admin/role-mappings/{id}", h.auth.Middleware(h.handleGetMapping))
	mux.HandleFunc("PATCH /v1/admin/role-mappings/{id}", h.auth.Middleware(h.handleUpdateMapping))
	mux.HandleFunc("DELETE /v1/admin/role-mappings/{id}", h.auth.Middleware(h.handleDeleteMapping))

	mux.HandleFunc("GET /v1/admin/roles", h.auth.Middleware(h.handleListRoles))
	mux.HandleFunc("GET /v1/admin/audit", h.auth.Middleware(h.handleListAudit))

	mux.HandleFunc("GET /v1/me", h.auth.Middleware(h.handleMe))
}

// --- Superadmin whitelist ---

func (h *RBACAdminHandler) handleListSuperadmins(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	entries, err := h.rbac.ListSuperadmins(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"superadmins": entries})
}

func (h *RBACAdminHandler) handleAddSuperadmin(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req struct {
		Email string `json:"email"`
		Notes string `json:"notes,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	entry, err := h.rbac.AddSuperadmin(r.Context(), user, req.Email, req.Notes, clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *RBACAdminHandler) handleRemoveSuperadmin(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	removed, err := h.rbac.RemoveSuperadmin(r.Context(), user, r.PathValue("email"), clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not a superadmin"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// --- Group→role mappings ---

func (h *RBACAdminHandler) handleListMappings(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	enabledOnly := r.URL.Query().Get("enabled") == "true"

	mappings, err := h.rbac.ListRoleMappings(r.Context(), user, enabledOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"mappings": mappings})
}

func (h *RBACAdminHandler) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var m rbac.GroupRoleMapping
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	created, err := h.rbac.CreateRoleMapping(r.Context(), user, &m, clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RBACAdminHandler) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	m, err := h.rbac.GetRoleMapping(r.Context(), user, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *RBACAdminHandler) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var patch store.RoleMappingPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	updated, err := h.rbac.UpdateRoleMapping(r.Context(), user, id, patch, clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *RBACAdminHandler) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	removed, err := h.rbac.DeleteRoleMapping(r.Context(), user, id, clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "mapping not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Roles, audit, identity ---

func (h *RBACAdminHandler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.rbac.ListRoles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

func (h *RBACAdminHandler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.rbac.ListAudit(r.Context(), user, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"audit": entries})
}

// handleMe returns the caller's resolved authorization context, mainly
// for debugging mapping configurations.
func (h *RBACAdminHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, UserFromContext(r.Context()))
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
