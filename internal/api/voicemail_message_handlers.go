package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/flowpbx/switchyard/internal/api/middleware"
	"github.com/flowpbx/switchyard/internal/blob"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// handleDownloadVoicemailMessage streams the audio of the message named by
// a valid download token. Deleted messages are gone even while their blob
// awaits the purge.
func (s *Server) handleDownloadVoicemailMessage(w http.ResponseWriter, r *http.Request) {
	id := middleware.MessageIDFromContext(r.Context())

	msg, err := s.Store.Voicemail.GetMessage(r.Context(), id)
	if err != nil {
		s.storeError(w, "download voicemail: failed to query", err, "msg_id", id)
		return
	}
	if msg == nil || msg.Status == models.MessageDeleted || msg.Filename == "" {
		writeError(w, http.StatusNotFound, "voicemail message not found")
		return
	}

	rc, err := s.Voicemail.Open(r.Context(), msg.Filename)
	if errors.Is(err, blob.ErrNotExist) {
		writeError(w, http.StatusNotFound, "voicemail audio not found")
		return
	}
	if err != nil {
		s.logger.Error("download voicemail: failed to open audio", "error", err, "msg_id", id, "file", msg.Filename)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer rc.Close()

	filename := "voicemail_" + msg.ID + ".wav"
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))

	// Local files support range requests for seeking.
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, filename, msg.Created, rs)
		return
	}
	if size, err := s.Voicemail.Size(r.Context(), msg.Filename); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("download voicemail: copy interrupted", "error", err, "msg_id", id)
	}
}
