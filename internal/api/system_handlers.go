package api

import (
	"net/http"
)

// flushRequest selects the cache keys to drop. An empty prefix drops all.
type flushRequest struct {
	Prefix string `json:"prefix" validate:"max=500,nocontrol"`
}

// handleFlushCache drops cached documents on every node and tells the
// switches to flush theirs.
func (s *Server) handleFlushCache(w http.ResponseWriter, r *http.Request) {
	var req flushRequest
	if r.ContentLength != 0 {
		if errMsg := readJSON(r, &req); errMsg != "" {
			writeError(w, http.StatusBadRequest, errMsg)
			return
		}
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	s.Cache.Flush(r.Context(), req.Prefix)
	s.logger.Info("cache flushed", "prefix", req.Prefix)
	writeJSON(w, http.StatusOK, map[string]string{"prefix": req.Prefix})
}

// handleSyncLocalStream rewrites local_stream.conf on every switch.
func (s *Server) handleSyncLocalStream(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.Sync.SyncLocalStream(r.Context())
	if err != nil {
		s.logger.Error("sync local stream: failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toSyncResponse(statuses))
}
