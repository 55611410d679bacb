package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flowpbx/switchyard/internal/recording"
)

// handleImportRecording stores an uploaded recording under the tenant of
// the {domain} route parameter. PUT and non-multipart POST carry the file as
// the raw body; multipart POST carries it as the first file part.
func (s *Server) handleImportRecording(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	file := chi.URLParam(r, "*")

	body, closeBody, err := uploadBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file in upload")
		return
	}
	defer closeBody()

	name, err := s.Importer.Import(r.Context(), domain, file, body)
	switch {
	case err == nil:
		s.logger.Info("recording imported", "name", name, "remote_addr", r.RemoteAddr)
		writeJSON(w, http.StatusCreated, map[string]string{"name": name})
	case errors.Is(err, recording.ErrUnknownTenant):
		writeError(w, http.StatusNotFound, "unknown domain")
	case errors.Is(err, recording.ErrInvalidFile):
		writeError(w, http.StatusBadRequest, "invalid file name")
	case errors.Is(err, recording.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
	default:
		s.logger.Error("import recording: failed to save", "error", err, "domain", domain, "file", file)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// uploadBody returns the reader of the uploaded file without buffering it.
func uploadBody(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if r.Method != http.MethodPost || !strings.HasPrefix(mediaType, "multipart/") {
		return r.Body, func() {}, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, err
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, nil, err
		}
		if part.FileName() != "" {
			return part, func() { part.Close() }, nil
		}
		part.Close()
	}
}
