package xmlcurl

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"

	"github.com/flowpbx/switchyard/internal/cache"
	"github.com/flowpbx/switchyard/internal/cachekey"
	"github.com/flowpbx/switchyard/internal/database"
)

// SettingAllowedAddresses is the xmlhandler setting holding the
// comma-separated networks allowed to query the lookup service.
const SettingAllowedAddresses = "allowed_addresses"

// Gate admits lookups only from allowed networks. The list is read through
// the cache so an operator change takes effect on every node at once.
type Gate struct {
	cache    cache.Cache
	settings database.SettingRepository
	fallback string
	logger   *slog.Logger

	mu       sync.Mutex
	source   string
	prefixes []netip.Prefix
}

// NewGate creates a gate. fallback is used while no setting is stored.
func NewGate(c cache.Cache, settings database.SettingRepository, fallback string, logger *slog.Logger) *Gate {
	return &Gate{
		cache:    c,
		settings: settings,
		fallback: fallback,
		logger:   logger.With("subsystem", "xml-acl"),
	}
}

// Allowed reports whether remoteAddr (host or host:port) may query.
func (g *Gate) Allowed(ctx context.Context, remoteAddr string) bool {
	addr, err := parseAddr(remoteAddr)
	if err != nil {
		g.logger.Warn("failed to parse remote address for acl match", "remote", remoteAddr, "error", err)
		return false
	}
	prefixes, err := g.load(ctx)
	if err != nil {
		g.logger.Error("loading allowed addresses", "error", err)
		return false
	}
	for _, p := range prefixes {
		if p.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}

// Middleware answers 404 to every peer outside the list.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Allowed(r.Context(), r.RemoteAddr) {
			g.logger.Warn("xml lookup denied", "remote", r.RemoteAddr, "path", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) load(ctx context.Context) ([]netip.Prefix, error) {
	list, _, err := cache.Fetch(ctx, g.cache, cachekey.XMLHandler(SettingAllowedAddresses), cache.NoExpiry,
		func(ctx context.Context) (string, error) {
			v, ok, err := g.settings.Get(ctx, database.CategoryXMLHandler, SettingAllowedAddresses)
			if err != nil {
				return "", err
			}
			if !ok {
				return g.fallback, nil
			}
			return v, nil
		})
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if list == g.source && g.prefixes != nil {
		return g.prefixes, nil
	}
	prefixes, err := parseAddressList(list)
	if err != nil {
		return nil, err
	}
	g.source, g.prefixes = list, prefixes
	return prefixes, nil
}

// parseAddressList parses comma-separated addresses and CIDR ranges, e.g.
// "127.0.0.1, 10.0.0.0/8, ::1".
func parseAddressList(list string) ([]netip.Prefix, error) {
	prefixes := []netip.Prefix{}
	for _, h := range strings.Split(list, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		prefix, err := parseCIDROrIP(h)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed address %q: %w", h, err)
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes, nil
}

// parseCIDROrIP parses a string as either a CIDR prefix or a single IP address.
// Single IPs are converted to /32 (IPv4) or /128 (IPv6) prefixes.
func parseCIDROrIP(s string) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(s)
	if err == nil {
		return prefix.Masked(), nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("not a valid ip or cidr: %s", s)
	}

	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// parseAddr parses an IP string that may include a port (e.g. "192.168.1.1:5060")
// and returns just the address portion.
func parseAddr(ipStr string) (netip.Addr, error) {
	if host, _, err := net.SplitHostPort(ipStr); err == nil {
		return netip.ParseAddr(host)
	}
	return netip.ParseAddr(ipStr)
}
