package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// extensionResponse hides the SIP and voicemail passwords.
func extensionResponse(e *models.Extension) *models.Extension {
	out := *e
	out.Password = ""
	if e.Voicemail != nil {
		vm := *e.Voicemail
		vm.Password = ""
		out.Voicemail = &vm
	}
	return &out
}

// handleListExtensions returns a tenant's extensions with pagination.
func (s *Server) handleListExtensions(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	tenantID := chi.URLParam(r, "id")
	exts, err := s.Store.Extensions.ListByTenant(r.Context(), tenantID)
	if err != nil {
		s.storeError(w, "list extensions: failed to query", err, "tenant_id", tenantID)
		return
	}

	all := make([]*models.Extension, len(exts))
	for i := range exts {
		all[i] = extensionResponse(&exts[i])
	}
	writeJSON(w, http.StatusOK, page(all, pg))
}

// handleGetExtension returns a single extension by ID.
func (s *Server) handleGetExtension(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ext, err := s.Store.Extensions.GetByID(r.Context(), id)
	if err != nil {
		s.storeError(w, "get extension: failed to query", err, "extension_id", id)
		return
	}
	if ext == nil {
		writeError(w, http.StatusNotFound, "extension not found")
		return
	}
	writeJSON(w, http.StatusOK, extensionResponse(ext))
}

// handleUpsertExtension creates or replaces an extension. The number must
// be unique within the tenant.
func (s *Server) handleUpsertExtension(w http.ResponseWriter, r *http.Request) {
	var ext models.Extension
	if errMsg := readJSON(r, &ext); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	status := upsertStatus(r, &ext.ID)
	if err := validate.Struct(ext); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ctx := r.Context()
	tenant, err := s.Store.Tenants.GetByID(ctx, ext.TenantID)
	if err != nil {
		s.storeError(w, "upsert extension: failed to query tenant", err, "tenant_id", ext.TenantID)
		return
	}
	if tenant == nil {
		writeError(w, http.StatusBadRequest, "tenant_id does not exist")
		return
	}

	dup, err := s.Store.Extensions.GetByNumber(ctx, ext.TenantID, ext.Number)
	if err != nil {
		s.storeError(w, "upsert extension: failed to check number", err, "number", ext.Number)
		return
	}
	if dup != nil && dup.ID != ext.ID {
		writeError(w, http.StatusConflict, "extension number already exists")
		return
	}

	if err := s.Store.Extensions.Upsert(ctx, &ext); err != nil {
		s.storeError(w, "upsert extension: failed to write", err, "extension_id", ext.ID)
		return
	}
	saved, err := s.Store.Extensions.GetByID(ctx, ext.ID)
	if err != nil || saved == nil {
		s.storeError(w, "upsert extension: failed to re-fetch", err, "extension_id", ext.ID)
		return
	}

	s.logger.Info("extension saved", "extension_id", saved.ID, "number", saved.Number, "domain", tenant.Name)
	writeJSON(w, status, extensionResponse(saved))
}

// handleDeleteExtension removes an extension.
func (s *Server) handleDeleteExtension(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.Extensions.Delete(r.Context(), id); err != nil {
		s.storeError(w, "delete extension: failed to delete", err, "extension_id", id)
		return
	}
	s.logger.Info("extension deleted", "extension_id", id)
	w.WriteHeader(http.StatusNoContent)
}
