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

// SettingNumberAsPresenceID forces number-as-presence-id for every tenant.
const SettingNumberAsPresenceID = "number_as_presence_id"

const sectionDirectory = "directory"

// directoryIntent is what a directory request asks for.
type directoryIntent int

const (
	intentUser directoryIntent = iota
	intentDomain
	intentNetworkList
	intentGroups
	intentReverseAuth
	intentVoiceDirectory
	intentUnsupported
)

func classifyDirectory(req *request) directoryIntent {
	switch {
	case lower(req.Purpose) == "network-list":
		return intentNetworkList
	case lower(req.Purpose) == "gateways":
		return intentUnsupported
	case lower(req.Action) == "reverse-auth-lookup":
		return intentReverseAuth
	case req.EventCallingFile == "mod_directory.c":
		return intentVoiceDirectory
	case req.Group != "" || lower(req.Action) == "group_call":
		return intentGroups
	case req.EventCallingFunction == "switch_xml_locate_domain" || req.User == "":
		return intentDomain
	default:
		return intentUser
	}
}

func (s *Server) handleDirectory(w http.ResponseWriter, r *http.Request) {
	req, err := s.decode(r)
	if err != nil {
		s.logger.Debug("decoding directory request", "error", err)
		s.notFound(w, sectionDirectory)
		return
	}

	switch classifyDirectory(req) {
	case intentNetworkList:
		s.serve(w, r, sectionDirectory, "", 0, s.loadNetworkList)
	case intentReverseAuth:
		if req.User == "" || req.Domain == "" {
			s.notFound(w, sectionDirectory)
			return
		}
		s.serve(w, r, sectionDirectory, cachekey.ReverseAuth(req.User, req.Domain), s.opts.TTL,
			func(ctx context.Context) (string, error) { return s.loadReverseAuth(ctx, req.User, req.Domain) })
	case intentVoiceDirectory:
		s.serve(w, r, sectionDirectory, "", 0,
			func(ctx context.Context) (string, error) { return s.loadVoiceDirectory(ctx, req.Domain) })
	case intentGroups:
		s.serve(w, r, sectionDirectory, cachekey.Groups(req.Domain), s.opts.TTL,
			func(ctx context.Context) (string, error) { return s.loadGroups(ctx, req.Domain) })
	case intentDomain:
		s.serve(w, r, sectionDirectory, "", 0,
			func(ctx context.Context) (string, error) { return s.loadDomain(ctx, req.Domain) })
	case intentUser:
		s.serve(w, r, sectionDirectory, cachekey.Directory(req.User, req.Domain), s.opts.TTL,
			func(ctx context.Context) (string, error) { return s.loadUser(ctx, req.User, req.Domain) })
	default:
		s.notFound(w, sectionDirectory)
	}
}

// tenant returns the enabled tenant named domain or errNotFound.
func (s *Server) tenant(ctx context.Context, domain string) (*models.Tenant, error) {
	if domain == "" {
		return nil, errNotFound
	}
	t, err := s.store.Tenants.GetByName(ctx, domain)
	if err != nil {
		return nil, err
	}
	if t == nil || !t.Enabled {
		return nil, errNotFound
	}
	return t, nil
}

// extension returns the enabled extension answering to user in the tenant.
func (s *Server) extension(ctx context.Context, tenantID, user string) (*models.Extension, error) {
	ext, err := s.store.Extensions.GetByNumber(ctx, tenantID, user)
	if err != nil {
		return nil, err
	}
	if ext == nil || !ext.Enabled {
		return nil, errNotFound
	}
	return ext, nil
}

func (s *Server) loadUser(ctx context.Context, user, domain string) (string, error) {
	t, err := s.tenant(ctx, domain)
	if err != nil {
		return "", err
	}
	ext, err := s.extension(ctx, t.ID, user)
	if err != nil {
		return "", err
	}
	if ext.Settings, err = s.store.Extensions.Settings(ctx, ext.ID); err != nil {
		return "", err
	}
	vm, err := s.store.Voicemail.GetByExtension(ctx, ext.ID)
	if err != nil {
		return "", err
	}
	ts, err := s.store.Tenants.Settings(ctx, t.ID)
	if err != nil {
		return "", err
	}
	forced, err := s.setting(ctx, SettingNumberAsPresenceID)
	if err != nil {
		return "", err
	}
	if forced == "true" {
		t.NumberAsPresenceID = true
	}
	return fsxml.Render(fsxml.UserDocument(fsxml.User{
		Extension:      *ext,
		Tenant:         *t,
		Voicemail:      vm,
		TenantSettings: ts,
	}, user))
}

// setting reads an xmlhandler tunable through the cache. Absent settings
// read as the empty string.
func (s *Server) setting(ctx context.Context, name string) (string, error) {
	v, _, err := cache.Fetch(ctx, s.cache, cachekey.XMLHandler(name), cache.NoExpiry,
		func(ctx context.Context) (string, error) {
			v, _, err := s.store.Settings.Get(ctx, database.CategoryXMLHandler, name)
			return v, err
		})
	return v, err
}

func (s *Server) loadDomain(ctx context.Context, domain string) (string, error) {
	t, err := s.tenant(ctx, domain)
	if err != nil {
		return "", err
	}
	return fsxml.Render(fsxml.DomainDocument(t.Name))
}

func (s *Server) loadGroups(ctx context.Context, domain string) (string, error) {
	t, err := s.tenant(ctx, domain)
	if err != nil {
		return "", err
	}
	exts, err := s.store.Extensions.ListCallGroups(ctx, t.ID)
	if err != nil {
		return "", err
	}
	return fsxml.Render(fsxml.GroupsDocument(t.Name, exts))
}

func (s *Server) loadReverseAuth(ctx context.Context, user, domain string) (string, error) {
	t, err := s.tenant(ctx, domain)
	if err != nil {
		return "", err
	}
	ext, err := s.extension(ctx, t.ID, user)
	if err != nil {
		return "", err
	}
	return fsxml.Render(fsxml.ReverseAuthDocument(t.Name, *ext))
}

func (s *Server) loadNetworkList(ctx context.Context) (string, error) {
	users, err := s.store.Extensions.ListWithCIDR(ctx)
	if err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", errNotFound
	}
	out := make([]fsxml.CIDRUser, 0, len(users))
	for _, u := range users {
		out = append(out, fsxml.CIDRUser{Domain: u.Domain, Number: u.Number, CIDR: u.CIDR})
	}
	return fsxml.Render(fsxml.NetworkListDocument(out))
}

func (s *Server) loadVoiceDirectory(ctx context.Context, domain string) (string, error) {
	t, err := s.tenant(ctx, domain)
	if err != nil {
		return "", err
	}
	exts, err := s.store.Extensions.ListByTenant(ctx, t.ID)
	if err != nil {
		return "", err
	}
	return fsxml.Render(fsxml.VoiceDirectoryDocument(t.Name, exts))
}
