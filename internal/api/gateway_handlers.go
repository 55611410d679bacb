package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowpbx/switchyard/internal/database/models"
	"github.com/flowpbx/switchyard/internal/switchsync"
)

// syncResponse reports the outcome of a switch write per switch.
type syncResponse struct {
	Statuses map[string]syncStatus `json:"statuses"`
}

type syncStatus struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
}

func toSyncResponse(statuses map[string]switchsync.Status) syncResponse {
	out := syncResponse{Statuses: make(map[string]syncStatus, len(statuses))}
	for name, st := range statuses {
		out.Statuses[name] = syncStatus{Code: int(st), Status: st.String()}
	}
	return out
}

// gatewayResponse hides the registration password.
func gatewayResponse(g *models.Gateway) *models.Gateway {
	out := *g
	out.Password = ""
	return &out
}

// handleListGateways returns gateways with pagination.
func (s *Server) handleListGateways(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	gateways, err := s.Store.Gateways.List(r.Context())
	if err != nil {
		s.storeError(w, "list gateways: failed to query", err)
		return
	}

	all := make([]*models.Gateway, len(gateways))
	for i := range gateways {
		all[i] = gatewayResponse(&gateways[i])
	}
	writeJSON(w, http.StatusOK, page(all, pg))
}

// handleGetGateway returns a single gateway by ID.
func (s *Server) handleGetGateway(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g, err := s.Store.Gateways.GetByID(r.Context(), id)
	if err != nil {
		s.storeError(w, "get gateway: failed to query", err, "gateway_id", id)
		return
	}
	if g == nil {
		writeError(w, http.StatusNotFound, "gateway not found")
		return
	}
	writeJSON(w, http.StatusOK, gatewayResponse(g))
}

// handleUpsertGateway creates or replaces a gateway. The switches pick up
// the change on the next sync. An empty password on update keeps the stored
// one.
func (s *Server) handleUpsertGateway(w http.ResponseWriter, r *http.Request) {
	var g models.Gateway
	if errMsg := readJSON(r, &g); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	status := upsertStatus(r, &g.ID)
	if err := validate.Struct(g); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ctx := r.Context()
	profile, err := s.Store.SIPProfiles.GetByID(ctx, g.SIPProfileID)
	if err != nil {
		s.storeError(w, "upsert gateway: failed to query profile", err, "sip_profile_id", g.SIPProfileID)
		return
	}
	if profile == nil {
		writeError(w, http.StatusBadRequest, "sip_profile_id does not exist")
		return
	}

	if g.ID != "" && g.Password == "" {
		existing, err := s.Store.Gateways.GetByID(ctx, g.ID)
		if err != nil {
			s.storeError(w, "upsert gateway: failed to query", err, "gateway_id", g.ID)
			return
		}
		if existing != nil {
			g.Password = existing.Password
		}
	}

	if err := s.Store.Gateways.Upsert(ctx, &g); err != nil {
		s.storeError(w, "upsert gateway: failed to write", err, "gateway_id", g.ID)
		return
	}
	saved, err := s.Store.Gateways.GetByID(ctx, g.ID)
	if err != nil || saved == nil {
		s.storeError(w, "upsert gateway: failed to re-fetch", err, "gateway_id", g.ID)
		return
	}

	s.logger.Info("gateway saved", "gateway_id", saved.ID, "name", saved.Name, "profile", profile.Name)
	writeJSON(w, status, gatewayResponse(saved))
}

// handleDeleteGateway removes a gateway row. Its file stays on the switches
// until a sync of a disabled gateway or a profile restart.
func (s *Server) handleDeleteGateway(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.Gateways.Delete(r.Context(), id); err != nil {
		s.storeError(w, "delete gateway: failed to delete", err, "gateway_id", id)
		return
	}
	s.logger.Info("gateway deleted", "gateway_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleSyncGateway writes the gateway's include file to its switches and
// returns the per-switch result.
func (s *Server) handleSyncGateway(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	statuses, err := s.Sync.SyncGateway(r.Context(), id)
	if errors.Is(err, switchsync.ErrNotFound) {
		writeError(w, http.StatusNotFound, "gateway not found")
		return
	}
	if err != nil {
		s.logger.Error("sync gateway: failed", "error", err, "gateway_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toSyncResponse(statuses))
}
