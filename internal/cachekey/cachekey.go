// Package cachekey defines the cache key namespace shared by the store,
// the XML lookup service and the HTTAPI engine.
package cachekey

import "strings"

// Key prefixes.
const (
	PrefixDirectory       = "directory:"
	PrefixGroups          = "directory:groups:"
	PrefixReverseAuth     = "directory:reverseauth:"
	PrefixDialplan        = "dialplan:"
	PrefixDialplanPublic  = "dialplan:public"
	PrefixDialplanExclude = "dialplanexclude:"
	PrefixLanguages       = "languages:"
	PrefixConfiguration   = "configuration:"
	PrefixXMLHandler      = "xmlhandler:"
)

// Directory is the key of one rendered user record.
func Directory(user, domain string) string {
	return PrefixDirectory + user + "@" + domain
}

// Groups is the key of a domain's call-group map.
func Groups(domain string) string {
	return PrefixGroups + domain
}

// ReverseAuth is the key of one user's reverse-auth credentials.
func ReverseAuth(user, domain string) string {
	return PrefixReverseAuth + user + "@" + domain
}

// Dialplan is the key of a rendered context. Documents rendered for a
// hostname-pinned switch are keyed per hostname below the context key.
func Dialplan(context, hostname string) string {
	if hostname == "" {
		return PrefixDialplan + context
	}
	return PrefixDialplan + context + "@" + hostname
}

// DialplanHosts is the prefix covering every hostname variant of a context.
func DialplanHosts(context string) string {
	return PrefixDialplan + context + "@"
}

// DialplanPublic is the key of the inbound route for one destination.
func DialplanPublic(destination, hostname string) string {
	k := PrefixDialplanPublic + ":" + destination
	if hostname != "" {
		k += "@" + hostname
	}
	return k
}

// DialplanExclude is the key of a context's excluded application kinds.
func DialplanExclude(context string) string {
	return PrefixDialplanExclude + context
}

// Languages is the key of one rendered phrase macro.
func Languages(lang, macro string) string {
	return PrefixLanguages + lang + ":" + macro
}

// Configuration is the key of a rendered configuration file. Extra parts
// (the IVR menu name) are appended with colons.
func Configuration(name string, parts ...string) string {
	if len(parts) == 0 {
		return PrefixConfiguration + name
	}
	return PrefixConfiguration + name + ":" + strings.Join(parts, ":")
}

// XMLHandler is the key of one xml handler tunable.
func XMLHandler(setting string) string {
	return PrefixXMLHandler + setting
}

// User extracts (user, domain) from a directory key. ok is false for keys
// that are not per-user directory records.
func User(key string) (user, domain string, ok bool) {
	if !strings.HasPrefix(key, PrefixDirectory) ||
		strings.HasPrefix(key, PrefixGroups) ||
		strings.HasPrefix(key, PrefixReverseAuth) {
		return "", "", false
	}
	user, domain, ok = strings.Cut(strings.TrimPrefix(key, PrefixDirectory), "@")
	return user, domain, ok
}
