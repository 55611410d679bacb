package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// handleListTenants returns tenants with pagination.
func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	tenants, err := s.Store.Tenants.List(r.Context())
	if err != nil {
		s.storeError(w, "list tenants: failed to query", err)
		return
	}
	writeJSON(w, http.StatusOK, page(tenants, pg))
}

// handleGetTenant returns a single tenant by ID.
func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.Store.Tenants.GetByID(r.Context(), id)
	if err != nil {
		s.storeError(w, "get tenant: failed to query", err, "tenant_id", id)
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleUpsertTenant creates a tenant (POST) or replaces one (PUT /{id}).
func (s *Server) handleUpsertTenant(w http.ResponseWriter, r *http.Request) {
	var t models.Tenant
	if errMsg := readJSON(r, &t); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	status := upsertStatus(r, &t.ID)
	if err := validate.Struct(t); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	existing, err := s.Store.Tenants.GetByName(r.Context(), t.Name)
	if err != nil {
		s.storeError(w, "upsert tenant: failed to query name", err, "name", t.Name)
		return
	}
	if existing != nil && existing.ID != t.ID {
		writeError(w, http.StatusConflict, "a tenant with this name already exists")
		return
	}

	if err := s.Store.Tenants.Upsert(r.Context(), &t); err != nil {
		s.storeError(w, "upsert tenant: failed to write", err, "tenant_id", t.ID)
		return
	}
	saved, err := s.Store.Tenants.GetByID(r.Context(), t.ID)
	if err != nil || saved == nil {
		s.storeError(w, "upsert tenant: failed to re-fetch", err, "tenant_id", t.ID)
		return
	}

	s.logger.Info("tenant saved", "tenant_id", saved.ID, "name", saved.Name)
	writeJSON(w, status, saved)
}

// handleDeleteTenant removes a tenant and everything scoped to it.
func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.Tenants.Delete(r.Context(), id); err != nil {
		s.storeError(w, "delete tenant: failed to delete", err, "tenant_id", id)
		return
	}
	s.logger.Info("tenant deleted", "tenant_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// upsertStatus takes the row ID from the {id} route parameter when present.
// Creates answer 201, replacements 200.
func upsertStatus(r *http.Request, id *string) int {
	if p := chi.URLParam(r, "id"); p != "" {
		*id = p
		return http.StatusOK
	}
	if *id != "" {
		return http.StatusOK
	}
	return http.StatusCreated
}
