package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nextlevelbuilder/agentgate/internal/routing"
	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// AreaAdminHandler exposes group→area mapping administration.
type AreaAdminHandler struct {
	areas *routing.AreaAdmin
	auth  *Authenticator
}

// NewAreaAdminHandler creates the area-mapping admin handler.
func NewAreaAdminHandler(areas *routing.AreaAdmin, auth *Authenticator) *AreaAdminHandler {
	return &AreaAdminHandler{areas: areas, auth: auth}
}

// RegisterRoutes registers the area-mapping admin routes on the given mux.
func (h *AreaAdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/admin/area-mappings", h.auth.Middleware(h.handleList))
	mux.HandleFunc("POST /v1/admin/area-mappings", h.auth.Middleware(h.handleCreate))
	mux.HandleFunc("GET /v1/admin/area-mappings/{id}", h.auth.Middleware(h.handleGet))
	mux.HandleFunc("PATCH /v1/admin/area-mappings/{id}", h.auth.Middleware(h.handleUpdate))
	mux.HandleFunc("DELETE /v1/admin/area-mappings/{id}", h.auth.Middleware(h.handleDelete))
}

func (h *AreaAdminHandler) handleList(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	enabledOnly := r.URL.Query().Get("enabled") == "true"

	mappings, err := h.areas.List(r.Context(), user, enabledOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"mappings": mappings})
}

func (h *AreaAdminHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var m store.AreaMapping
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	created, err := h.areas.Create(r.Context(), user, &m, clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *AreaAdminHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	m, err := h.areas.Get(r.Context(), user, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *AreaAdminHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var patch store.AreaMappingPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	updated, err := h.areas.Update(r.Context(), user, id, patch, clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AreaAdminHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	removed, err := h.areas.Delete(r.Context(), user, id, clientIP(r))
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
