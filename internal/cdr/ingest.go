package cdr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/flowpbx/switchyard/internal/blob"
	"github.com/flowpbx/switchyard/internal/database"
	"github.com/flowpbx/switchyard/internal/database/models"
	"github.com/flowpbx/switchyard/internal/metrics"
	"github.com/flowpbx/switchyard/internal/recording"
)

// stampLayout is the switch's wall-clock stamp format.
const stampLayout = "2006-01-02 15:04:05"

// Sources label CDR metrics.
const (
	SourceXML   = "xml"
	SourceJSON  = "json"
	SourceEvent = "event"
)

// recordingVars are the channel variables that may name a leg's recording,
// in order of preference.
var recordingVars = []string{
	"recording_file",
	"sofia_record_file",
	"record_file",
	"cc_record_filename",
	"conference_recording",
	"system_recording_file",
}

// Config configures an Ingestor.
type Config struct {
	// RecordingsDir is the switch-side recordings root. Probed recordings
	// are stored as paths under it.
	RecordingsDir string
	// KeepBLeg is the set of call directions whose B-leg is stored.
	KeepBLeg map[string]bool
	// Location is the zone of the switch's wall-clock stamps.
	Location *time.Location
}

// Ingestor normalizes records against the directory and stores them.
type Ingestor struct {
	store      *database.Store
	recordings blob.Blob
	cfg        Config
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewIngestor creates an Ingestor. recordings may be nil to skip probing.
func NewIngestor(store *database.Store, recordings blob.Blob, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Ingestor {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Ingestor{store: store, recordings: recordings, cfg: cfg, metrics: m, logger: logger}
}

// Ingest stores one leg. It returns ErrDuplicateCDR when the leg is already
// stored and ErrSkippedLeg when the B-leg policy drops it.
func (i *Ingestor) Ingest(ctx context.Context, source string, rec *Record) (*models.CDR, error) {
	c, err := i.ingest(ctx, rec)
	i.count(source, err)
	return c, err
}

func (i *Ingestor) count(source string, err error) {
	if i.metrics == nil {
		return
	}
	result := "stored"
	switch {
	case errors.Is(err, ErrDuplicateCDR):
		result = "duplicate"
	case errors.Is(err, ErrSkippedLeg):
		result = "skipped"
	case errors.Is(err, ErrInvalidCDRData):
		result = "invalid"
	case err != nil:
		result = "error"
	}
	i.metrics.CDRIngested.WithLabelValues(source, result).Inc()
}

func (i *Ingestor) ingest(ctx context.Context, rec *Record) (*models.CDR, error) {
	if rec == nil || rec.Var("uuid") == "" {
		return nil, fmt.Errorf("%w: missing uuid", ErrInvalidCDRData)
	}
	c := i.normalize(rec)
	if c.Leg == LegB && !i.cfg.KeepBLeg[c.Direction] {
		return nil, ErrSkippedLeg
	}

	tenant, err := i.tenant(ctx, rec)
	if err != nil {
		return nil, err
	}
	if tenant != nil {
		c.TenantID = &tenant.ID
		ext, err := i.extension(ctx, tenant, rec)
		if err != nil {
			return nil, err
		}
		if ext != nil {
			c.ExtensionID = &ext.ID
		}
		c.RecordingPath = i.recordingPath(ctx, tenant, rec, c)
	} else {
		c.RecordingPath = varRecording(rec)
		i.logger.Debug("cdr for unknown tenant", "call_uuid", c.CallUUID, "context", c.Context)
	}

	inserted, err := i.store.CDRs.Insert(ctx, c)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return c, ErrDuplicateCDR
	}
	if c.RecordingPath != "" {
		err := i.store.CDRs.AddRecording(ctx, &models.CallRecording{
			TenantID: c.TenantID,
			CallUUID: c.CallUUID,
			Path:     c.RecordingPath,
		})
		if err != nil {
			return c, err
		}
	}
	i.logger.Debug("cdr stored", "call_uuid", c.CallUUID, "leg", c.Leg, "direction", c.Direction)
	return c, nil
}

// normalize maps the record's variables onto a CDR row.
func (i *Ingestor) normalize(rec *Record) *models.CDR {
	c := &models.CDR{
		CoreUUID:             rec.CoreUUID,
		CallUUID:             rec.Var("uuid"),
		Leg:                  rec.Leg,
		Direction:            rec.first("call_direction", "direction"),
		Hostname:             rec.Var("hostname"),
		Context:              rec.Profile["context"],
		CallerIDName:         rec.first("caller_id_name", "origination_caller_id_name"),
		CallerIDNumber:       rec.first("caller_id_number", "origination_caller_id_number"),
		CallerDestination:    rec.Var("caller_destination"),
		DestinationNumber:    rec.first("destination_number", "dialed_user"),
		StartEpoch:           parseInt64(rec.Var("start_epoch")),
		AnswerEpoch:          parseInt64(rec.Var("answer_epoch")),
		EndEpoch:             parseInt64(rec.Var("end_epoch")),
		Duration:             parseInt(rec.Var("duration")),
		Billsec:              parseInt(rec.Var("billsec")),
		BridgeUUID:           rec.first("bridge_uuid", "last_bridge_to"),
		HangupCause:          rec.Var("hangup_cause"),
		HangupCauseQ850:      parseInt(rec.Var("hangup_cause_q850")),
		SIPHangupDisposition: rec.Var("sip_hangup_disposition"),
		CCSide:               rec.Var("cc_side"),
		CCQueue:              rec.Var("cc_queue"),
		CCMemberUUID:         rec.Var("cc_member_uuid"),
		CCAgent:              rec.Var("cc_agent"),
		CCCause:              rec.first("cc_cause", "cc_cancel_reason"),
	}
	if c.Leg == "" {
		c.Leg = LegA
	}
	if c.CoreUUID == "" {
		c.CoreUUID = rec.Var("core_uuid")
	}
	if c.Context == "" {
		c.Context = rec.Var("context")
	}
	if c.CallerIDName == "" {
		c.CallerIDName = rec.Profile["caller_id_name"]
	}
	if c.CallerIDNumber == "" {
		c.CallerIDNumber = rec.Profile["caller_id_number"]
	}
	if c.DestinationNumber == "" {
		c.DestinationNumber = rec.Profile["destination_number"]
	}
	c.StartStamp = i.stamp(rec.Var("start_stamp"), c.StartEpoch)
	c.AnswerStamp = i.stamp(rec.Var("answer_stamp"), c.AnswerEpoch)
	c.EndStamp = i.stamp(rec.Var("end_stamp"), c.EndEpoch)
	if c.Duration == 0 && c.EndEpoch > c.StartEpoch && c.StartEpoch > 0 {
		c.Duration = int(c.EndEpoch - c.StartEpoch)
	}
	c.MissedCall = rec.Var("missed_call") == "true" ||
		(c.Direction == "inbound" && c.AnswerEpoch == 0 && c.HangupCause == "ORIGINATOR_CANCEL")
	return c
}

// stamp reads a wall-clock stamp in the configured zone, falling back to the
// epoch.
func (i *Ingestor) stamp(s string, epoch int64) *time.Time {
	if s != "" {
		if t, err := time.ParseInLocation(stampLayout, s, i.cfg.Location); err == nil {
			return &t
		}
	}
	if epoch > 0 {
		t := time.Unix(epoch, 0).In(i.cfg.Location)
		return &t
	}
	return nil
}

// tenant resolves the owning tenant from the domain variables, the SIP
// request host or the dialplan context.
func (i *Ingestor) tenant(ctx context.Context, rec *Record) (*models.Tenant, error) {
	if id := rec.Var("domain_uuid"); id != "" {
		t, err := i.store.Tenants.GetByID(ctx, id)
		if err != nil || t != nil {
			return t, err
		}
	}
	for _, name := range []string{rec.Var("domain_name"), rec.Var("sip_req_host"), rec.Profile["context"], rec.Var("context")} {
		if name == "" {
			continue
		}
		t, err := i.store.Tenants.GetByName(ctx, name)
		if err != nil || t != nil {
			return t, err
		}
	}
	return nil, nil
}

// extension resolves the extension by UUID, then by dialed number.
func (i *Ingestor) extension(ctx context.Context, tenant *models.Tenant, rec *Record) (*models.Extension, error) {
	if id := rec.Var("extension_uuid"); id != "" {
		e, err := i.store.Extensions.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if e != nil && e.TenantID == tenant.ID {
			return e, nil
		}
	}
	for _, n := range []string{rec.Var("dialed_user"), rec.Var("referred_by_user"), rec.Var("last_sent_callee_id_number")} {
		if n == "" {
			continue
		}
		e, err := i.store.Extensions.GetByNumber(ctx, tenant.ID, n)
		if err != nil || e != nil {
			return e, err
		}
	}
	return nil, nil
}

// varRecording returns the recording named by the leg's variables.
func varRecording(rec *Record) string {
	if p := rec.first(recordingVars...); p != "" {
		return p
	}
	if dir, name := rec.Var("record_path"), rec.Var("record_name"); dir != "" && name != "" {
		return path.Join(dir, name)
	}
	if rec.Var("last_app") == "record_session" {
		if arg := rec.Var("last_arg"); arg != "" {
			return strings.Fields(arg)[0]
		}
	}
	return ""
}

// recordingPath finds the leg's recording from its variables or by probing
// the tenant's archive for the bridge or call UUID.
func (i *Ingestor) recordingPath(ctx context.Context, tenant *models.Tenant, rec *Record, c *models.CDR) string {
	if p := varRecording(rec); p != "" {
		return p
	}
	if i.recordings == nil {
		return ""
	}
	start := time.Now().In(i.cfg.Location)
	if c.StartStamp != nil {
		start = *c.StartStamp
	}
	ids := []string{c.CallUUID}
	if c.BridgeUUID != "" && c.BridgeUUID != c.CallUUID {
		ids = []string{c.BridgeUUID, c.CallUUID}
	}
	for _, id := range ids {
		for _, ext := range recording.Extensions {
			name := recording.ArchiveFile(tenant.Name, start, id, ext)
			ok, err := i.recordings.Exists(ctx, name)
			if err != nil {
				i.logger.Warn("probing recording", "name", name, "error", err)
				return ""
			}
			if ok {
				return path.Join(i.cfg.RecordingsDir, name)
			}
		}
	}
	return ""
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
