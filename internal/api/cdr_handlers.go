package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flowpbx/switchyard/internal/cdr"
)

// maxCDRBytes bounds one posted CDR document.
const maxCDRBytes = 4 << 20

// handleImportCDR accepts a record posted by mod_xml_cdr (form field cdr)
// or mod_json_cdr (raw JSON body). The leg comes from the a_/b_ prefix of
// the uuid query parameter. Duplicates and dropped B-legs answer 200 so the
// switch does not retry them.
func (s *Server) handleImportCDR(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCDRBytes)

	data, err := readCDR(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable cdr")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "cdr is required")
		return
	}

	leg, callUUID := cdr.LegFromUUID(r.URL.Query().Get("uuid"))
	source := cdr.SourceXML
	var rec *cdr.Record
	if data[0] == '{' {
		source = cdr.SourceJSON
		rec, err = cdr.ParseJSON(data, leg)
	} else {
		rec, err = cdr.ParseXML(data, leg)
	}
	if err == nil && rec.Var("uuid") == "" && callUUID != "" {
		rec.Vars["uuid"] = callUUID
	}
	if err == nil {
		_, err = s.CDRs.Ingest(r.Context(), source, rec)
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
	case errors.Is(err, cdr.ErrDuplicateCDR):
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
	case errors.Is(err, cdr.ErrSkippedLeg):
		writeJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
	case errors.Is(err, cdr.ErrInvalidCDRData):
		s.logger.Warn("import cdr: invalid document", "error", err, "uuid", callUUID)
		writeError(w, http.StatusBadRequest, "invalid cdr")
	default:
		s.logger.Error("import cdr: failed to store", "error", err, "uuid", callUUID)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func readCDR(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		data, err := io.ReadAll(r.Body)
		return bytes.TrimSpace(data), err
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return bytes.TrimSpace([]byte(r.PostForm.Get("cdr"))), nil
}

// handleCallTimeline returns a call's channel events in order.
func (s *Server) handleCallTimeline(w http.ResponseWriter, r *http.Request) {
	callUUID := chi.URLParam(r, "call_uuid")
	events, err := s.CDRs.CallTimeline(r.Context(), callUUID)
	if err != nil {
		s.storeError(w, "call timeline: failed to query", err, "call_uuid", callUUID)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleCallRecordings lists the recording files attached to a call.
func (s *Server) handleCallRecordings(w http.ResponseWriter, r *http.Request) {
	callUUID := chi.URLParam(r, "call_uuid")
	recs, err := s.Store.CDRs.Recordings(r.Context(), callUUID)
	if err != nil {
		s.storeError(w, "call recordings: failed to query", err, "call_uuid", callUUID)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
