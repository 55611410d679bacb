package database

import (
	"context"

	"github.com/flowpbx/switchyard/internal/cachekey"
)

// Entity kinds carried in change notices.
const (
	KindTenant        = "tenant"
	KindTenantSetting = "tenant_setting"
	KindExtension     = "extension"
	KindFollowMe      = "follow_me"
	KindVoicemail     = "voicemail"
	KindDialplan      = "dialplan"
	KindExclude       = "dialplan_exclude"
	KindGateway       = "gateway"
	KindSIPProfile    = "sip_profile"
	KindACL           = "acl"
	KindMusicOnHold   = "music_on_hold"
	KindTranslation   = "translation"
	KindSetting       = "setting"
	KindPhrase        = "phrase"
	KindIVRMenu       = "ivr_menu"
	KindCallCentre    = "call_centre"
	KindConference    = "conference"
	KindCallFlow      = "call_flow"
	KindCallBlock     = "call_block"
	KindRingGroup     = "ring_group"
	KindSpeedDial     = "speed_dial"
	KindRecording     = "recording"
)

// Change is a notice that a committed write touched an entity. Keys are exact
// cache keys to drop, Prefixes cover families of keys.
type Change struct {
	Kind     string   `json:"kind"`
	Tenant   string   `json:"tenant,omitempty"`
	Key      string   `json:"key"`
	Keys     []string `json:"keys,omitempty"`
	Prefixes []string `json:"prefixes,omitempty"`
}

// Empty reports whether the change invalidates nothing.
func (c Change) Empty() bool {
	return len(c.Keys) == 0 && len(c.Prefixes) == 0
}

// ChangeNotifier receives change notices after commit.
type ChangeNotifier interface {
	Notify(ctx context.Context, c Change)
}

// userRef identifies a directory user for key derivation.
type userRef struct {
	Number string `db:"number"`
	Alias  string `db:"number_alias"`
	Domain string `db:"domain"`
}

// directoryKeys returns every cache key derived from the given users.
func directoryKeys(users ...userRef) []string {
	var keys []string
	seenDomain := make(map[string]bool)
	for _, u := range users {
		if u.Domain == "" {
			continue
		}
		for _, id := range []string{u.Number, u.Alias} {
			if id == "" {
				continue
			}
			keys = append(keys,
				cachekey.Directory(id, u.Domain),
				cachekey.ReverseAuth(id, u.Domain),
			)
		}
		if !seenDomain[u.Domain] {
			seenDomain[u.Domain] = true
			keys = append(keys, cachekey.Groups(u.Domain))
		}
	}
	return keys
}

// dialplanInvalidation returns keys and prefixes covering a context.
func dialplanInvalidation(context string) (keys, prefixes []string) {
	switch context {
	case "":
		return nil, nil
	case "public":
		return nil, []string{cachekey.PrefixDialplanPublic}
	case "global":
		return nil, []string{cachekey.PrefixDialplan}
	default:
		return []string{cachekey.Dialplan(context, "")}, []string{cachekey.DialplanHosts(context)}
	}
}
