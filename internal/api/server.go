package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/flowpbx/switchyard/internal/api/middleware"
	"github.com/flowpbx/switchyard/internal/blob"
	"github.com/flowpbx/switchyard/internal/cdr"
	"github.com/flowpbx/switchyard/internal/database"
	"github.com/flowpbx/switchyard/internal/database/models"
	"github.com/flowpbx/switchyard/internal/fsxml"
	"github.com/flowpbx/switchyard/internal/switchsync"
)

// CDRIngester normalizes and stores call detail records.
type CDRIngester interface {
	Ingest(ctx context.Context, source string, rec *cdr.Record) (*models.CDR, error)
	CallTimeline(ctx context.Context, callUUID string) ([]models.CallTimelineEvent, error)
}

// RecordingImporter stores uploaded recordings.
type RecordingImporter interface {
	Import(ctx context.Context, domain, file string, r io.Reader) (string, error)
}

// Syncer pushes on-disk configuration to the switches.
type Syncer interface {
	SyncGateway(ctx context.Context, id string) (map[string]switchsync.Status, error)
	SyncLocalStream(ctx context.Context) (map[string]switchsync.Status, error)
}

// Flusher drops cached documents below a key prefix on every node.
type Flusher interface {
	Flush(ctx context.Context, prefix string)
}

// DialplanBuilder generates the dialplan row that routes a call flow.
type DialplanBuilder func(ctx context.Context, tenant *models.Tenant, flow *models.CallFlow) (*models.Dialplan, error)

// Deps are the collaborators the HTTP surface is built from. XML, HTTAPI and
// Metrics are mounted as-is.
type Deps struct {
	Store     *database.Store
	XML       http.Handler
	HTTAPI    http.Handler
	Metrics   http.Handler
	CDRs      CDRIngester
	Importer  RecordingImporter
	Voicemail blob.Blob
	Cache     Flusher
	Sync      Syncer
	Dialplans DialplanBuilder

	// SwitchGate admits only switch addresses to the intake endpoints.
	SwitchGate    func(http.Handler) http.Handler
	ImportLimiter *middleware.IPRateLimiter
	APILimiter    *middleware.IPRateLimiter

	APIKey    string
	JWTSecret []byte
	Logger    *slog.Logger
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router *chi.Mux
	Deps
	logger *slog.Logger
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(d Deps) *Server {
	if d.SwitchGate == nil {
		d.SwitchGate = func(next http.Handler) http.Handler { return next }
	}
	s := &Server{
		router: chi.NewRouter(),
		Deps:   d,
		logger: d.Logger.With("component", "api"),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger(s.logger))

	r.Get("/health", s.handleHealth)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	// Switch-facing endpoints. A failing lookup must still hand the switch
	// a document it understands.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer(s.logger, writeNotFoundXML))
		if s.XML != nil {
			r.Mount("/xml", s.XML)
		}
		if s.HTTAPI != nil {
			r.Mount("/httapi", s.HTTAPI)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer(s.logger, nil))
		r.Use(s.SwitchGate)
		r.Post("/xmlcdr/import", s.handleImportCDR)
		r.Route("/rec_import/{domain}", func(r chi.Router) {
			if s.ImportLimiter != nil {
				r.Use(middleware.RateLimit(s.ImportLimiter))
			}
			r.Post("/*", s.handleImportRecording)
			r.Put("/*", s.handleImportRecording)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer(s.logger, nil))
		r.Use(middleware.SecurityHeaders)
		r.With(middleware.RequireMessageToken(s.JWTSecret)).
			Get("/voicemail/messages/{id}", s.handleDownloadVoicemailMessage)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Recoverer(s.logger, nil))
		r.Use(middleware.SecurityHeaders)
		if s.APILimiter != nil {
			r.Use(middleware.RateLimit(s.APILimiter))
		}
		r.Use(middleware.RequireAPIKey(s.APIKey))
		r.Use(actor)

		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", s.handleListTenants)
			r.Post("/", s.handleUpsertTenant)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTenant)
				r.Put("/", s.handleUpsertTenant)
				r.Delete("/", s.handleDeleteTenant)
				r.Get("/extensions", s.handleListExtensions)
				r.Get("/call-flows", s.handleListCallFlows)
			})
		})

		r.Route("/extensions", func(r chi.Router) {
			r.Post("/", s.handleUpsertExtension)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetExtension)
				r.Put("/", s.handleUpsertExtension)
				r.Delete("/", s.handleDeleteExtension)
			})
		})

		r.Route("/dialplans", func(r chi.Router) {
			r.Post("/", s.handleUpsertDialplan)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDialplan)
				r.Put("/", s.handleUpsertDialplan)
				r.Delete("/", s.handleDeleteDialplan)
			})
		})

		r.Route("/call-flows", func(r chi.Router) {
			r.Post("/", s.handleUpsertCallFlow)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetCallFlow)
				r.Put("/", s.handleUpsertCallFlow)
				r.Delete("/", s.handleDeleteCallFlow)
			})
		})

		r.Route("/gateways", func(r chi.Router) {
			r.Get("/", s.handleListGateways)
			r.Post("/", s.handleUpsertGateway)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetGateway)
				r.Put("/", s.handleUpsertGateway)
				r.Delete("/", s.handleDeleteGateway)
				r.Post("/sync", s.handleSyncGateway)
			})
		})

		r.Post("/local-stream/sync", s.handleSyncLocalStream)
		r.Post("/cache/flush", s.handleFlushCache)

		r.Route("/calls/{call_uuid}", func(r chi.Router) {
			r.Get("/timeline", s.handleCallTimeline)
			r.Get("/recordings", s.handleCallRecordings)
		})
	})

	s.logger.Info("http routes mounted")
}

// actor attributes store writes made through the admin API.
func actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(database.WithActor(r.Context(), "api")))
	})
}

// handleHealth reports whether the store answers. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.Store.DB.PingContext(ctx); err != nil {
		s.logger.Error("health: store ping failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeNotFoundXML(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fsxml.NotFound()))
}

// storeError answers a failed store call. Missing rows map to 404.
func (s *Server) storeError(w http.ResponseWriter, op string, err error, attrs ...any) {
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.logger.Error(op, append([]any{"error", err}, attrs...)...)
	writeError(w, http.StatusInternalServerError, "internal error")
}
