// Package cdr normalizes call detail records posted by the switch or read
// off the event bus, and records channel events on per-call timelines.
package cdr

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/flowpbx/switchyard/internal/bus"
)

var (
	// ErrInvalidCDRData is returned for a record that cannot be parsed or
	// lacks a call UUID.
	ErrInvalidCDRData = errors.New("invalid cdr data")

	// ErrDuplicateCDR is returned when the leg was already stored.
	ErrDuplicateCDR = errors.New("duplicate cdr")

	// ErrSkippedLeg is returned for a B-leg whose direction is not kept.
	ErrSkippedLeg = errors.New("cdr leg skipped")
)

// Legs.
const (
	LegA = "a"
	LegB = "b"
)

// Record is one leg's raw CDR: its channel variables plus the caller
// profile of its first callflow.
type Record struct {
	CoreUUID string
	Leg      string
	Vars     map[string]string
	Profile  map[string]string
}

// Var returns a channel variable or "".
func (r *Record) Var(name string) string {
	return r.Vars[name]
}

// first returns the first non-empty variable of names.
func (r *Record) first(names ...string) string {
	for _, n := range names {
		if v := r.Vars[n]; v != "" {
			return v
		}
	}
	return ""
}

// LegFromUUID splits the uuid query parameter of an XML CDR post into the
// leg and call UUID. An unprefixed value is the A-leg.
func LegFromUUID(s string) (leg, uuid string) {
	switch {
	case strings.HasPrefix(s, "a_"):
		return LegA, s[2:]
	case strings.HasPrefix(s, "b_"):
		return LegB, s[2:]
	}
	return LegA, s
}

type xmlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type xmlFields struct {
	Fields []xmlField `xml:",any"`
}

type xmlCDR struct {
	XMLName   xml.Name  `xml:"cdr"`
	CoreUUID  string    `xml:"core-uuid,attr"`
	Variables xmlFields `xml:"variables"`
	Callflow  []struct {
		Profile xmlFields `xml:"caller_profile"`
	} `xml:"callflow"`
}

// unescape decodes the percent-encoding the switch applies to variable
// values. A plus sign is kept since caller numbers carry one.
func unescape(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	if v, err := url.PathUnescape(s); err == nil {
		return v
	}
	return s
}

// ParseXML parses a mod_xml_cdr document.
func ParseXML(data []byte, leg string) (*Record, error) {
	var doc xmlCDR
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCDRData, err)
	}
	rec := &Record{
		CoreUUID: doc.CoreUUID,
		Leg:      leg,
		Vars:     make(map[string]string, len(doc.Variables.Fields)),
		Profile:  make(map[string]string),
	}
	for _, f := range doc.Variables.Fields {
		rec.Vars[f.XMLName.Local] = unescape(strings.TrimSpace(f.Value))
	}
	if len(doc.Callflow) > 0 {
		for _, f := range doc.Callflow[0].Profile.Fields {
			rec.Profile[f.XMLName.Local] = strings.TrimSpace(f.Value)
		}
	}
	if rec.CoreUUID == "" {
		rec.CoreUUID = rec.Vars["core_uuid"]
	}
	return rec, nil
}

// ParseJSON parses a mod_json_cdr document. The callflow may be an object or
// an array of them.
func ParseJSON(data []byte, leg string) (*Record, error) {
	rec := &Record{Leg: leg, Vars: make(map[string]string), Profile: make(map[string]string)}
	if v, err := jsonparser.GetString(data, "core-uuid"); err == nil {
		rec.CoreUUID = v
	}

	err := jsonparser.ObjectEach(data, func(key, value []byte, t jsonparser.ValueType, _ int) error {
		rec.Vars[string(key)] = unescape(jsonScalar(value, t))
		return nil
	}, "variables")
	if err != nil {
		return nil, fmt.Errorf("%w: variables: %v", ErrInvalidCDRData, err)
	}

	profile, t, _, err := jsonparser.Get(data, "callflow")
	if err == nil {
		if t == jsonparser.Array {
			profile, _, _, err = jsonparser.Get(profile, "[0]", "caller_profile")
		} else {
			profile, _, _, err = jsonparser.Get(profile, "caller_profile")
		}
	}
	if err == nil {
		_ = jsonparser.ObjectEach(profile, func(key, value []byte, t jsonparser.ValueType, _ int) error {
			if t != jsonparser.Object && t != jsonparser.Array {
				rec.Profile[string(key)] = jsonScalar(value, t)
			}
			return nil
		})
	}
	if rec.CoreUUID == "" {
		rec.CoreUUID = rec.Vars["core_uuid"]
	}
	return rec, nil
}

func jsonScalar(value []byte, t jsonparser.ValueType) string {
	if t == jsonparser.String {
		if s, err := jsonparser.ParseString(value); err == nil {
			return s
		}
	}
	if t == jsonparser.Null {
		return ""
	}
	return string(value)
}

// profileHeaders maps caller profile fields to their event headers.
var profileHeaders = map[string]string{
	"context":            "Caller-Context",
	"caller_id_name":     "Caller-Caller-ID-Name",
	"caller_id_number":   "Caller-Caller-ID-Number",
	"destination_number": "Caller-Destination-Number",
	"username":           "Caller-Username",
	"uuid":               "Caller-Unique-ID",
}

// FromEvent builds a record from a CHANNEL_HANGUP_COMPLETE event. Channel
// variables arrive as variable_<name> headers. A leg that was originated by
// another channel is the B-leg.
func FromEvent(ev bus.Event) *Record {
	rec := &Record{
		CoreUUID: ev.Header("Core-UUID"),
		Leg:      LegA,
		Vars:     make(map[string]string),
		Profile:  make(map[string]string),
	}
	for k, v := range ev.Headers {
		if name, ok := strings.CutPrefix(k, "variable_"); ok {
			rec.Vars[name] = v
		}
	}
	for field, header := range profileHeaders {
		if v := ev.Header(header); v != "" {
			rec.Profile[field] = v
		}
	}
	if rec.Vars["uuid"] == "" {
		rec.Vars["uuid"] = ev.Header("Unique-ID")
	}
	if rec.Vars["hostname"] == "" {
		rec.Vars["hostname"] = ev.Hostname()
	}
	if rec.Vars["originating_leg_uuid"] != "" || ev.Header("Other-Type") == "originator" {
		rec.Leg = LegB
	}
	return rec
}
