// Package xmlcurl serves the switch's mod_xml_curl lookups. Every answer
// is read through the cache; misses render from the store.
package xmlcurl

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"

	"github.com/flowpbx/switchyard/internal/cache"
	"github.com/flowpbx/switchyard/internal/database"
	"github.com/flowpbx/switchyard/internal/fsxml"
	"github.com/flowpbx/switchyard/internal/metrics"
)

// Dialplan modes for the public context.
const (
	ModeSingle = "single"
	ModeMulti  = "multi"
)

// errNotFound makes a loader answer with the not-found sentinel.
var errNotFound = errors.New("not found")

// Options tunes rendering.
type Options struct {
	// TTL applies to directory and dialplan documents; zero never expires.
	TTL          time.Duration
	DialplanMode string
	// Hostname is used when the switch sends none.
	Hostname string
	Voice    fsxml.Voice
}

// Server answers directory, dialplan, languages and configuration lookups.
type Server struct {
	store   *database.Store
	cache   cache.Cache
	gate    *Gate
	opts    Options
	metrics *metrics.Metrics
	decoder *schema.Decoder
	logger  *slog.Logger
}

// NewServer creates the lookup service.
func NewServer(store *database.Store, c cache.Cache, gate *Gate, m *metrics.Metrics, opts Options, logger *slog.Logger) *Server {
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)
	if opts.DialplanMode == "" {
		opts.DialplanMode = ModeSingle
	}
	return &Server{
		store:   store,
		cache:   c,
		gate:    gate,
		opts:    opts,
		metrics: m,
		decoder: dec,
		logger:  logger.With("component", "xmlcurl"),
	}
}

// Routes returns the gated /xml router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.gate.Middleware)
	r.Post("/directory", s.handleDirectory)
	r.Post("/dialplan", s.handleDialplan)
	r.Post("/languages", s.handleLanguages)
	r.Post("/configuration", s.handleConfiguration)
	return r
}

// request carries the parameters mod_xml_curl posts for every section.
type request struct {
	Section  string `schema:"section"`
	Hostname string `schema:"hostname"`
	TagName  string `schema:"tag_name"`
	KeyName  string `schema:"key_name"`
	KeyValue string `schema:"key_value"`

	// directory
	Domain               string `schema:"domain"`
	User                 string `schema:"user"`
	Purpose              string `schema:"purpose"`
	Action               string `schema:"action"`
	Group                string `schema:"group"`
	EventCallingFunction string `schema:"Event-Calling-Function"`
	EventCallingFile     string `schema:"Event-Calling-File"`

	// dialplan
	CallerContext           string `schema:"Caller-Context"`
	CallerDestinationNumber string `schema:"Caller-Destination-Number"`
	HuntContext             string `schema:"Hunt-Context"`
	HuntDestinationNumber   string `schema:"Hunt-Destination-Number"`

	// languages
	Lang      string `schema:"lang"`
	MacroName string `schema:"macro_name"`

	// configuration
	MenuName string `schema:"Menu-Name"`
}

func (s *Server) decode(r *http.Request) (*request, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	var req request
	if err := s.decoder.Decode(&req, r.Form); err != nil {
		return nil, err
	}
	if req.Hostname == "" {
		req.Hostname = s.opts.Hostname
	}
	return &req, nil
}

// serve answers with the cached document at key, rendering it with load on
// a miss. An empty key disables caching. Failures of any kind answer with
// the not-found sentinel so the switch falls back to its static config.
func (s *Server) serve(w http.ResponseWriter, r *http.Request, section, key string, ttl time.Duration, load func(ctx context.Context) (string, error)) {
	render := func(ctx context.Context) (string, error) {
		doc, err := load(ctx)
		if err == nil {
			s.metrics.XMLRenders.WithLabelValues(section).Inc()
		}
		return doc, err
	}

	var (
		doc string
		hit bool
		err error
	)
	if key == "" {
		doc, err = render(r.Context())
	} else {
		doc, hit, err = cache.Fetch(r.Context(), s.cache, key, ttl, render)
	}

	switch {
	case errors.Is(err, errNotFound):
		s.metrics.XMLRequests.WithLabelValues(section, "not_found").Inc()
		doc = fsxml.NotFound()
	case err != nil:
		s.logger.Error("rendering xml", "section", section, "key", key, "error", err)
		s.metrics.XMLRequests.WithLabelValues(section, "error").Inc()
		doc = fsxml.NotFound()
	case hit:
		s.metrics.XMLRequests.WithLabelValues(section, "hit").Inc()
	default:
		s.metrics.XMLRequests.WithLabelValues(section, "miss").Inc()
	}
	writeXML(w, doc)
}

func (s *Server) notFound(w http.ResponseWriter, section string) {
	s.metrics.XMLRequests.WithLabelValues(section, "not_found").Inc()
	writeXML(w, fsxml.NotFound())
}

func writeXML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
