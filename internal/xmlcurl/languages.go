package xmlcurl

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/flowpbx/switchyard/internal/cache"
	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/fsxml"
)

const sectionLanguages = "languages"

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	req, err := s.decode(r)
	if err != nil || req.Lang == "" {
		s.notFound(w, sectionLanguages)
		return
	}
	if _, err := uuid.Parse(req.MacroName); err != nil {
		s.notFound(w, sectionLanguages)
		return
	}
	s.serve(w, r, sectionLanguages, cachekey.Languages(req.Lang, req.MacroName), cache.NoExpiry,
		func(ctx context.Context) (string, error) {
			p, err := s.store.Phrases.GetByID(ctx, req.MacroName)
			if err != nil {
				return "", err
			}
			if p == nil || !p.Enabled || (p.Language != "" && p.Language != req.Lang) {
				return "", errNotFound
			}
			return fsxml.Render(fsxml.LanguageDocument(req.Lang, s.opts.Voice, p))
		})
}
