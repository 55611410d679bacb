package xmlcurl

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/flowpbx/switchyard/internal/cache"
	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database/models"
	"github.com/flowpbx/switchyard/internal/fsxml"
)

const sectionDialplan = "dialplan"

func (s *Server) handleDialplan(w http.ResponseWriter, r *http.Request) {
	req, err := s.decode(r)
	if err != nil {
		s.logger.Debug("decoding dialplan request", "error", err)
		s.notFound(w, sectionDialplan)
		return
	}

	dpContext, destination := req.CallerContext, req.CallerDestinationNumber
	if req.HuntContext != "" {
		dpContext = req.HuntContext
	}
	if req.HuntDestinationNumber != "" {
		destination = req.HuntDestinationNumber
	}
	if dpContext == "" {
		s.notFound(w, sectionDialplan)
		return
	}
	host := req.Hostname

	switch {
	case dpContext == models.ContextPublic && s.opts.DialplanMode == ModeSingle:
		s.serve(w, r, sectionDialplan, cachekey.DialplanPublic(destination, host), s.opts.TTL,
			func(ctx context.Context) (string, error) { return s.loadInbound(ctx, host, destination) })
	case dpContext == models.ContextPublic:
		s.serve(w, r, sectionDialplan, cachekey.Dialplan(dpContext, host), s.opts.TTL,
			func(ctx context.Context) (string, error) { return s.loadContext(ctx, host, dpContext, false) })
	default:
		s.serve(w, r, sectionDialplan, cachekey.Dialplan(dpContext, host), s.opts.TTL,
			func(ctx context.Context) (string, error) { return s.loadContext(ctx, host, dpContext, true) })
	}
}

func (s *Server) loadInbound(ctx context.Context, host, destination string) (string, error) {
	rows, err := s.store.Dialplans.ListInbound(ctx, host, destination)
	if err != nil {
		return "", err
	}
	return fsxml.Render(fsxml.PublicDocument(rows, destination))
}

// loadContext renders a context with the global rows merged in. Tenant
// contexts honour the tenant's excluded application kinds. Global rows alone
// are served only for a known tenant.
func (s *Server) loadContext(ctx context.Context, host, dpContext string, tenantScoped bool) (string, error) {
	contexts := []string{dpContext}
	var excludes []string
	if tenantScoped {
		contexts = append(contexts, models.ContextGlobal)
		var err error
		if excludes, err = s.excludes(ctx, dpContext); err != nil {
			return "", err
		}
	}
	rows, err := s.store.Dialplans.ListContext(ctx, host, contexts...)
	if err != nil {
		return "", err
	}
	if !slices.ContainsFunc(rows, func(d models.Dialplan) bool { return d.Context == dpContext }) {
		if !tenantScoped {
			return "", errNotFound
		}
		t, err := s.store.Tenants.GetByName(ctx, dpContext)
		if err != nil {
			return "", err
		}
		if t == nil || len(rows) == 0 {
			return "", errNotFound
		}
	}
	return fsxml.Render(fsxml.DialplanDocument(dpContext, rows, excludes))
}

// excludes returns the app ids suppressed in a tenant context, cached
// comma-joined under the context.
func (s *Server) excludes(ctx context.Context, dpContext string) ([]string, error) {
	list, _, err := cache.Fetch(ctx, s.cache, cachekey.DialplanExclude(dpContext), s.opts.TTL,
		func(ctx context.Context) (string, error) {
			t, err := s.store.Tenants.GetByName(ctx, dpContext)
			if err != nil || t == nil {
				return "", err
			}
			ids, err := s.store.Dialplans.Excludes(ctx, t.ID)
			if err != nil {
				return "", err
			}
			return strings.Join(ids, ","), nil
		})
	if err != nil || list == "" {
		return nil, err
	}
	return strings.Split(list, ","), nil
}
