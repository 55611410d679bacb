package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// handleListCallFlows returns a tenant's call flows with pagination.
func (s *Server) handleListCallFlows(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	tenantID := chi.URLParam(r, "id")
	flows, err := s.Store.CallFlows.ListByTenant(r.Context(), tenantID)
	if err != nil {
		s.storeError(w, "list call flows: failed to query", err, "tenant_id", tenantID)
		return
	}
	writeJSON(w, http.StatusOK, page(flows, pg))
}

// handleGetCallFlow returns a single call flow by ID.
func (s *Server) handleGetCallFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f, err := s.Store.CallFlows.GetByID(r.Context(), id)
	if err != nil {
		s.storeError(w, "get call flow: failed to query", err, "call_flow_id", id)
		return
	}
	if f == nil {
		writeError(w, http.StatusNotFound, "call flow not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// handleUpsertCallFlow creates or replaces a call flow together with the
// dialplan row that routes its extension and feature code.
func (s *Server) handleUpsertCallFlow(w http.ResponseWriter, r *http.Request) {
	var f models.CallFlow
	if errMsg := readJSON(r, &f); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	status := upsertStatus(r, &f.ID)
	if err := validate.Struct(f); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ctx := r.Context()
	tenant, err := s.Store.Tenants.GetByID(ctx, f.TenantID)
	if err != nil {
		s.storeError(w, "upsert call flow: failed to query tenant", err, "tenant_id", f.TenantID)
		return
	}
	if tenant == nil {
		writeError(w, http.StatusBadRequest, "tenant_id does not exist")
		return
	}

	// The dialplan references the flow, so the ID is fixed before building it.
	if f.ID == "" {
		f.ID = uuid.NewString()
	} else {
		existing, err := s.Store.CallFlows.GetByID(ctx, f.ID)
		if err != nil {
			s.storeError(w, "upsert call flow: failed to query", err, "call_flow_id", f.ID)
			return
		}
		// The generated dialplan row belongs to the flow, not the client.
		f.DialplanID = nil
		if existing != nil {
			f.DialplanID = existing.DialplanID
		}
	}
	if f.FeatureCode != "" {
		dup, err := s.Store.CallFlows.GetByFeatureCode(ctx, f.TenantID, f.FeatureCode)
		if err != nil {
			s.storeError(w, "upsert call flow: failed to check feature code", err, "feature_code", f.FeatureCode)
			return
		}
		if dup != nil && dup.ID != f.ID {
			writeError(w, http.StatusConflict, "feature code already in use")
			return
		}
	}

	var dp *models.Dialplan
	if s.Dialplans != nil {
		if dp, err = s.Dialplans(ctx, tenant, &f); err != nil {
			s.logger.Error("upsert call flow: failed to build dialplan", "error", err, "call_flow_id", f.ID)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}
	if err := s.Store.CallFlows.Upsert(ctx, &f, dp); err != nil {
		s.storeError(w, "upsert call flow: failed to write", err, "call_flow_id", f.ID)
		return
	}
	saved, err := s.Store.CallFlows.GetByID(ctx, f.ID)
	if err != nil || saved == nil {
		s.storeError(w, "upsert call flow: failed to re-fetch", err, "call_flow_id", f.ID)
		return
	}

	s.logger.Info("call flow saved", "call_flow_id", saved.ID, "extension", saved.Extension, "domain", tenant.Name)
	writeJSON(w, status, saved)
}

// handleDeleteCallFlow removes a call flow and its dialplan row.
func (s *Server) handleDeleteCallFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.CallFlows.Delete(r.Context(), id); err != nil {
		s.storeError(w, "delete call flow: failed to delete", err, "call_flow_id", id)
		return
	}
	s.logger.Info("call flow deleted", "call_flow_id", id)
	w.WriteHeader(http.StatusNoContent)
}
