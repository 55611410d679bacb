// Package httapi drives in-call flows for the switch's mod_httapi. Each
// request names a handler by path; the handler advances its per-call state
// and answers with a small XML program.
package httapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/schema"

	"github.com/flowpbx/switchyard/internal/blob"
	"github.com/flowpbx/switchyard/internal/bus"
	"github.com/flowpbx/switchyard/internal/cache"
	"github.com/flowpbx/switchyard/internal/database"
	"github.com/flowpbx/switchyard/internal/database/models"
	"github.com/flowpbx/switchyard/internal/email"
	"github.com/flowpbx/switchyard/internal/metrics"
	"github.com/flowpbx/switchyard/internal/recording"
)

// maxUploadBytes bounds a multipart rd_input upload.
const maxUploadBytes = 64 << 20

// Handler advances one kind of call flow.
type Handler interface {
	Handle(ctx context.Context, c *Call) (*Program, error)
}

// Exiter is implemented by handlers with work to do when the switch reports
// the call left the application.
type Exiter interface {
	Exit(ctx context.Context, c *Call) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, c *Call) (*Program, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, c *Call) (*Program, error) {
	return f(ctx, c)
}

// Bus is the part of the switch bus handlers use.
type Bus interface {
	Send(ctx context.Context, target, command string) error
	Execute(ctx context.Context, target, command string) (string, error)
	PublishEvent(ctx context.Context, ev bus.Event) error
}

// Mailer sends notification email.
type Mailer interface {
	SendVoicemail(ctx context.Context, t email.Templates, n email.VoicemailNotice) error
	SendMissedCall(ctx context.Context, t email.Templates, to string, vars map[string]string) error
}

// Settings are the deployment paths and defaults handlers need.
type Settings struct {
	// VoicemailDir and RecordingsDir are where the switch sees the blob
	// stores' files.
	VoicemailDir  string
	RecordingsDir string
	// BaseURL is the HTTAPI root the switch posts to, ending in /httapi.
	BaseURL           string
	Location          *time.Location
	MaxMessageSeconds int
}

// Core bundles the collaborators every handler is built from.
type Core struct {
	Store      *database.Store
	Cache      cache.Cache
	Bus        Bus
	Mailer     Mailer
	Voicemail  blob.Blob
	Recordings blob.Blob
	// Flags arms conference recordings once per room.
	Flags *recording.Flags
	// Link returns the download URL for a voicemail message.
	Link     func(messageID string) (string, error)
	Settings Settings
	Logger   *slog.Logger
	Now      func() time.Time
}

func (c *Core) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Core) location() *time.Location {
	if c.Settings.Location != nil {
		return c.Settings.Location
	}
	return time.UTC
}

// templates returns the stored override of a notification kind's templates
// or the given defaults.
func (c *Core) templates(ctx context.Context, kind string, defaults email.Templates) email.Templates {
	t := defaults
	if v, ok, err := c.Store.Settings.Get(ctx, database.CategoryEmail, kind+"_subject"); err == nil && ok {
		t.Subject = v
	}
	if v, ok, err := c.Store.Settings.Get(ctx, database.CategoryEmail, kind+"_body"); err == nil && ok {
		t.Body = v
	}
	return t
}

// Request is what the switch posted.
type Request struct {
	SessionID string `schema:"session_id"`
	Exiting   bool   `schema:"exiting"`
	Hostname  string `schema:"hostname"`
	Input     string `schema:"pb_input"`

	// Args are the path segments after the handler name.
	Args   []string   `schema:"-"`
	Params url.Values `schema:"-"`
}

// Arg returns the i-th path argument or "".
func (r *Request) Arg(i int) string {
	if i < len(r.Args) {
		return r.Args[i]
	}
	return ""
}

// Call is one request in flight.
type Call struct {
	Session *Session
	Request *Request

	handler string
	// Upload is the temp path of this request's rd_input, if any.
	Upload string
	done   bool
}

// Var returns a call variable, preferring this request's value over the
// persisted one.
func (c *Call) Var(name string) string {
	if v := c.Request.Params.Get(name); v != "" {
		return v
	}
	return c.Session.Var(name)
}

// Input is the DTMF collected by the last Collect.
func (c *Call) Input() string {
	return strings.TrimRight(c.Request.Input, "#")
}

// State loads the handler's persisted state into v.
func (c *Call) State(v any) error {
	return c.Session.load(c.handler, v)
}

// SetState persists v as the handler's state.
func (c *Call) SetState(v any) error {
	return c.Session.save(c.handler, v)
}

// Done destroys the session once the reply is written.
func (c *Call) Done() {
	c.done = true
}

// Hostname is the switch that owns the call.
func (c *Call) Hostname() string {
	if c.Request.Hostname != "" {
		return c.Request.Hostname
	}
	return c.Session.Hostname
}

type registration struct {
	handler Handler
	vars    []string
}

// baseVars are persisted for every handler.
var baseVars = []string{
	"domain_name", "domain_uuid", "caller_id_name", "caller_id_number",
	"destination_number", "sip_from_user", "sip_to_user", "dialed_user",
	"context", "call_uuid",
}

// Engine dispatches requests to handlers and keeps their sessions.
type Engine struct {
	handlers map[string]registration
	sessions *Sessions
	temp     *TempFiles
	metrics  *metrics.Metrics
	decoder  *schema.Decoder
	logger   *slog.Logger
}

// NewEngine creates an engine with no handlers.
func NewEngine(sessions *Sessions, temp *TempFiles, m *metrics.Metrics, logger *slog.Logger) *Engine {
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)
	return &Engine{
		handlers: make(map[string]registration),
		sessions: sessions,
		temp:     temp,
		metrics:  m,
		decoder:  dec,
		logger:   logger.With("component", "httapi"),
	}
}

// Register binds name to h. vars are the call variables the handler
// persists across requests, in addition to the common set.
func (e *Engine) Register(name string, h Handler, vars ...string) {
	e.handlers[name] = registration{handler: h, vars: vars}
}

// Routes returns the /httapi router.
func (e *Engine) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/*", e.serve)
	return r
}

func (e *Engine) serve(w http.ResponseWriter, r *http.Request) {
	segments := strings.Split(strings.Trim(chi.URLParam(r, "*"), "/"), "/")
	name := segments[0]
	reg, ok := e.handlers[name]
	if !ok {
		e.logger.Warn("unknown httapi handler", "path", r.URL.Path)
		writeProgram(w, errorProgram())
		return
	}

	req, err := e.decode(r)
	if err != nil {
		e.logger.Warn("decoding httapi request", "handler", name, "error", err)
		writeProgram(w, errorProgram())
		return
	}
	req.Args = segments[1:]
	if _, err := uuid.Parse(req.SessionID); err != nil {
		writeProgram(w, errorProgram())
		return
	}

	ctx := r.Context()
	logger := e.logger.With("handler", name, "session_id", req.SessionID)

	sess, _, err := e.sessions.GetOrCreate(ctx, req.SessionID, req.Hostname)
	if err != nil {
		logger.Error("loading session", "error", err)
		writeProgram(w, errorProgram())
		return
	}
	for _, names := range [][]string{baseVars, reg.vars} {
		for _, v := range names {
			if val := req.Params.Get(v); val != "" {
				sess.Vars[v] = val
			}
		}
	}

	call := &Call{Session: sess, Request: req, handler: name}
	if err := e.receiveUpload(r, call); err != nil {
		logger.Warn("storing upload", "error", err)
	}

	if req.Exiting {
		if x, ok := reg.handler.(Exiter); ok {
			if err := x.Exit(ctx, call); err != nil {
				logger.Warn("handler exit", "error", err)
			}
		}
		if err := e.sessions.Destroy(ctx, sess); err != nil {
			logger.Warn("destroying session", "error", err)
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Ok"))
		return
	}

	e.metrics.HTTAPIActions.WithLabelValues(name).Inc()
	prog, err := reg.handler.Handle(ctx, call)
	if err != nil {
		logger.Error("handling httapi request", "error", err)
		prog = errorProgram()
	}

	if call.done {
		if err := e.sessions.Destroy(ctx, sess); err != nil {
			logger.Warn("destroying session", "error", err)
		}
	} else if err := e.sessions.Put(ctx, sess); err != nil {
		logger.Error("storing session", "error", err)
	}
	writeProgram(w, prog)
}

func (e *Engine) decode(r *http.Request) (*Request, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, err
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, err
	}
	req := &Request{Params: r.Form}
	if err := e.decoder.Decode(req, r.Form); err != nil {
		return nil, err
	}
	return req, nil
}

func (e *Engine) receiveUpload(r *http.Request, c *Call) error {
	if r.MultipartForm == nil {
		return nil
	}
	f, _, err := r.FormFile(InputRecording)
	if errors.Is(err, http.ErrMissingFile) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	p, err := e.temp.Save(c.Session, fmt.Sprintf("upload-%d.wav", len(c.Session.TempFiles)), f)
	if err != nil {
		return err
	}
	c.Upload = p
	return nil
}

// TempPath is where the switch should record a session scratch file.
func (e *Engine) TempPath(sessionID, name string) string {
	return e.temp.Path(sessionID, name)
}

// errorProgram tells the caller the request cannot be completed.
func errorProgram() *Program {
	return NewProgram().Playback(soundCannotComplete).Hangup("")
}

func writeProgram(w http.ResponseWriter, p *Program) {
	b, err := p.Bytes()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// tenant resolves the call's tenant from domain_uuid or domain_name.
func (c *Core) tenant(ctx context.Context, call *Call) (*models.Tenant, error) {
	if id := call.Var("domain_uuid"); id != "" {
		if t, err := c.Store.Tenants.GetByID(ctx, id); err != nil || t != nil {
			return t, err
		}
	}
	if name := call.Var("domain_name"); name != "" {
		return c.Store.Tenants.GetByName(ctx, name)
	}
	return nil, nil
}

// caller resolves the calling extension within tenant.
func (c *Core) caller(ctx context.Context, call *Call, tenant *models.Tenant) (*models.Extension, error) {
	number := call.Var("sip_from_user")
	if number == "" {
		number = call.Var("caller_id_number")
	}
	if number == "" {
		return nil, nil
	}
	return c.Store.Extensions.GetByNumber(ctx, tenant.ID, number)
}
