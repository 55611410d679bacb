package xmlcurl

import (
	"context"
	"net/http"

	"github.com/flowpbx/switchyard/internal/cache"
	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database"
	"github.com/flowpbx/switchyard/internal/database/models"
	"github.com/flowpbx/switchyard/internal/fsxml"
)

const sectionConfiguration = "configuration"

// maxSubMenus bounds the menu-sub closure rendered with an IVR menu.
const maxSubMenus = 32

func (s *Server) handleConfiguration(w http.ResponseWriter, r *http.Request) {
	req, err := s.decode(r)
	if err != nil {
		s.notFound(w, sectionConfiguration)
		return
	}

	var (
		key  string
		load func(ctx context.Context) (string, error)
	)
	switch req.KeyValue {
	case fsxml.ConfACL:
		key, load = cachekey.Configuration(fsxml.ConfACL), s.loadACL
	case fsxml.ConfSofia:
		key = cachekey.Configuration(fsxml.ConfSofia)
		if req.Hostname != "" {
			key = cachekey.Configuration(fsxml.ConfSofia, req.Hostname)
		}
		load = func(ctx context.Context) (string, error) { return s.loadSofia(ctx, req.Hostname) }
	case fsxml.ConfLocalStream:
		key, load = cachekey.Configuration(fsxml.ConfLocalStream), s.loadLocalStream
	case fsxml.ConfTranslate:
		key, load = cachekey.Configuration(fsxml.ConfTranslate), s.loadTranslate
	case fsxml.ConfConference:
		key, load = cachekey.Configuration(fsxml.ConfConference), s.loadConference
	case fsxml.ConfCallcenter:
		key, load = cachekey.Configuration(fsxml.ConfCallcenter), s.loadCallcenter
	case fsxml.ConfIVR:
		if req.MenuName == "" {
			s.notFound(w, sectionConfiguration)
			return
		}
		key = cachekey.Configuration(fsxml.ConfIVR, req.MenuName)
		load = func(ctx context.Context) (string, error) { return s.loadIVR(ctx, req.MenuName) }
	default:
		s.notFound(w, sectionConfiguration)
		return
	}
	s.serve(w, r, sectionConfiguration, key, cache.NoExpiry, load)
}

func (s *Server) loadACL(ctx context.Context) (string, error) {
	lists, err := s.store.ACLs.List(ctx)
	if err != nil {
		return "", err
	}
	return fsxml.Render(fsxml.ACLDocument(lists))
}

func (s *Server) loadSofia(ctx context.Context, hostname string) (string, error) {
	globals, err := s.store.Settings.List(ctx, database.CategorySofia)
	if err != nil {
		return "", err
	}
	profiles, err := s.store.SIPProfiles.List(ctx, hostname)
	if err != nil {
		return "", err
	}
	gateways := make(map[string][]models.Gateway, len(profiles))
	for _, p := range profiles {
		gws, err := s.store.Gateways.ListByProfile(ctx, p.ID, hostname)
		if err != nil {
			return "", err
		}
		gateways[p.ID] = gws
	}
	return fsxml.Render(fsxml.SofiaDocument(globals, profiles, gateways))
}

// tenantDomains maps tenant ids to domains.
func tenantDomains(ctx context.Context, tenants database.TenantRepository) (map[string]string, error) {
	list, err := tenants.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(list))
	for _, t := range list {
		out[t.ID] = t.Name
	}
	return out, nil
}

func (s *Server) loadLocalStream(ctx context.Context) (string, error) {
	streams, err := s.store.MusicOnHold.List(ctx)
	if err != nil {
		return "", err
	}
	domains, err := tenantDomains(ctx, s.store.Tenants)
	if err != nil {
		return "", err
	}
	return fsxml.Render(fsxml.LocalStreamDocument(streams, domains))
}

func (s *Server) loadTranslate(ctx context.Context) (string, error) {
	profiles, err := s.store.Translations.List(ctx)
	if err != nil {
		return "", err
	}
	return fsxml.Render(fsxml.TranslateDocument(profiles))
}

func (s *Server) loadConference(ctx context.Context) (string, error) {
	controls, err := s.store.Conferences.Controls(ctx)
	if err != nil {
		return "", err
	}
	profiles, err := s.store.Conferences.Profiles(ctx)
	if err != nil {
		return "", err
	}
	return fsxml.Render(fsxml.ConferenceDocument(controls, profiles))
}

func (s *Server) loadCallcenter(ctx context.Context) (string, error) {
	globals, err := s.store.Settings.List(ctx, database.CategoryCallcenter)
	if err != nil {
		return "", err
	}
	queues, err := s.store.CallCentre.Queues(ctx)
	if err != nil {
		return "", err
	}
	agents, err := s.store.CallCentre.Agents(ctx)
	if err != nil {
		return "", err
	}
	return fsxml.Render(fsxml.CallcenterDocument(globals, queues, agents))
}

// loadIVR renders the named menu followed by every menu reachable through
// menu-sub entries within the same tenant.
func (s *Server) loadIVR(ctx context.Context, name string) (string, error) {
	root, err := s.store.IVRMenus.GetByID(ctx, name)
	if err != nil {
		return "", err
	}
	if root == nil || !root.Enabled {
		return "", errNotFound
	}
	t, err := s.store.Tenants.GetByID(ctx, root.TenantID)
	if err != nil {
		return "", err
	}
	if t == nil {
		return "", errNotFound
	}

	menus := []models.IVRMenu{*root}
	seen := map[string]bool{root.ID: true}
	for i := 0; i < len(menus) && len(menus) < maxSubMenus; i++ {
		for _, id := range fsxml.SubMenuIDs(menus[i]) {
			if seen[id] {
				continue
			}
			seen[id] = true
			sub, err := s.store.IVRMenus.GetByID(ctx, id)
			if err != nil {
				return "", err
			}
			if sub == nil || !sub.Enabled || sub.TenantID != root.TenantID {
				continue
			}
			menus = append(menus, *sub)
		}
	}
	return fsxml.Render(fsxml.IVRDocument(menus, t.Name))
}
