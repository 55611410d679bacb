package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// handleGetDialplan returns a single dialplan row by ID.
func (s *Server) handleGetDialplan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := s.Store.Dialplans.GetByID(r.Context(), id)
	if err != nil {
		s.storeError(w, "get dialplan: failed to query", err, "dialplan_id", id)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "dialplan not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleUpsertDialplan creates or replaces a dialplan row. Rows without a
// tenant are global.
func (s *Server) handleUpsertDialplan(w http.ResponseWriter, r *http.Request) {
	var d models.Dialplan
	if errMsg := readJSON(r, &d); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	status := upsertStatus(r, &d.ID)
	if err := validate.Struct(d); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ctx := r.Context()
	if d.TenantID != nil && *d.TenantID != "" {
		t, err := s.Store.Tenants.GetByID(ctx, *d.TenantID)
		if err != nil {
			s.storeError(w, "upsert dialplan: failed to query tenant", err, "tenant_id", *d.TenantID)
			return
		}
		if t == nil {
			writeError(w, http.StatusBadRequest, "tenant_id does not exist")
			return
		}
	} else {
		d.TenantID = nil
	}

	if err := s.Store.Dialplans.Upsert(ctx, &d); err != nil {
		s.storeError(w, "upsert dialplan: failed to write", err, "dialplan_id", d.ID)
		return
	}
	saved, err := s.Store.Dialplans.GetByID(ctx, d.ID)
	if err != nil || saved == nil {
		s.storeError(w, "upsert dialplan: failed to re-fetch", err, "dialplan_id", d.ID)
		return
	}

	s.logger.Info("dialplan saved", "dialplan_id", saved.ID, "context", saved.Context, "name", saved.Name)
	writeJSON(w, status, saved)
}

// handleDeleteDialplan removes a dialplan row.
func (s *Server) handleDeleteDialplan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.Dialplans.Delete(r.Context(), id); err != nil {
		s.storeError(w, "delete dialplan: failed to delete", err, "dialplan_id", id)
		return
	}
	s.logger.Info("dialplan deleted", "dialplan_id", id)
	w.WriteHeader(http.StatusNoContent)
}
