package httapi

import (
	"bytes"
	"encoding/xml"
	"strconv"
)

// Program is one HTTAPI reply: params and variables for the switch followed
// by work elements it executes in order.
type Program struct {
	params    []kv
	variables []kv
	work      []any
}

type kv struct {
	name, value string
}

// NewProgram starts an empty program.
func NewProgram() *Program {
	return &Program{}
}

// Param sets an httapi parameter for the next request.
func (p *Program) Param(name, value string) *Program {
	p.params = append(p.params, kv{name, value})
	return p
}

// Var sets a channel variable before the work runs.
func (p *Program) Var(name, value string) *Program {
	p.variables = append(p.variables, kv{name, value})
	return p
}

// Empty reports whether the program does any work.
func (p *Program) Empty() bool {
	return len(p.work) == 0
}

type bind struct {
	Strip string `xml:"strip,attr,omitempty"`
	Regex string `xml:",chardata"`
}

type playback struct {
	XMLName      xml.Name `xml:"playback"`
	File         string   `xml:"file,attr"`
	Name         string   `xml:"name,attr,omitempty"`
	ErrorFile    string   `xml:"error-file,attr,omitempty"`
	Loops        string   `xml:"loops,attr,omitempty"`
	DigitTimeout string   `xml:"digit-timeout,attr,omitempty"`
	InputTimeout string   `xml:"input-timeout,attr,omitempty"`
	Binds        []bind   `xml:"bind"`
}

type record struct {
	XMLName     xml.Name `xml:"record"`
	File        string   `xml:"file,attr"`
	Name        string   `xml:"name,attr"`
	ErrorFile   string   `xml:"error-file,attr,omitempty"`
	BeepFile    string   `xml:"beep-file,attr,omitempty"`
	Limit       string   `xml:"limit,attr,omitempty"`
	Terminators string   `xml:"terminators,attr,omitempty"`
}

type pause struct {
	XMLName      xml.Name `xml:"pause"`
	Milliseconds int      `xml:"milliseconds,attr"`
}

type execute struct {
	XMLName     xml.Name `xml:"execute"`
	Application string   `xml:"application,attr"`
	Data        string   `xml:"data,attr,omitempty"`
}

type hangup struct {
	XMLName xml.Name `xml:"hangup"`
	Cause   string   `xml:"cause,attr,omitempty"`
}

type conference struct {
	XMLName xml.Name `xml:"conference"`
	Profile string   `xml:"profile,attr,omitempty"`
	Flags   string   `xml:"flags,attr,omitempty"`
	Room    string   `xml:",chardata"`
}

type logLine struct {
	XMLName xml.Name `xml:"log"`
	Level   string   `xml:"level,attr"`
	Text    string   `xml:",chardata"`
}

// Playback plays file.
func (p *Program) Playback(file string) *Program {
	p.work = append(p.work, playback{File: file})
	return p
}

// Collect plays file while collecting DTMF into pb_input. regex is an
// httapi bind pattern ("~\d+#" collects digits up to a pound); strip removes
// terminators from the collected value.
func (p *Program) Collect(file, regex, strip string) *Program {
	p.work = append(p.work, playback{
		File:         file,
		Name:         InputDigits,
		ErrorFile:    errorFile,
		Loops:        "1",
		DigitTimeout: "5000",
		InputTimeout: "5000",
		Binds:        []bind{{Strip: strip, Regex: regex}},
	})
	return p
}

// Record captures audio into file and uploads it as rd_input. limit is in
// seconds; zero leaves the switch default.
func (p *Program) Record(file string, limit int) *Program {
	r := record{
		File:        file,
		Name:        InputRecording,
		BeepFile:    beepFile,
		Terminators: "#",
	}
	if limit > 0 {
		r.Limit = strconv.Itoa(limit)
	}
	p.work = append(p.work, r)
	return p
}

// Pause waits ms milliseconds.
func (p *Program) Pause(ms int) *Program {
	p.work = append(p.work, pause{Milliseconds: ms})
	return p
}

// Execute runs a dialplan application.
func (p *Program) Execute(app, data string) *Program {
	p.work = append(p.work, execute{Application: app, Data: data})
	return p
}

// Transfer moves the call to destination in context.
func (p *Program) Transfer(destination, context string) *Program {
	return p.Execute("transfer", destination+" XML "+context)
}

// Hangup ends the call; an empty cause lets the switch choose.
func (p *Program) Hangup(cause string) *Program {
	p.work = append(p.work, hangup{Cause: cause})
	return p
}

// Conference joins room on profile with member flags.
func (p *Program) Conference(profile, flags, room string) *Program {
	p.work = append(p.work, conference{Profile: profile, Flags: flags, Room: room})
	return p
}

// Log writes a line to the switch log.
func (p *Program) Log(level, text string) *Program {
	p.work = append(p.work, logLine{Level: level, Text: text})
	return p
}

// MarshalXML writes the httapi document. Params and variables are elements
// named after themselves, in insertion order.
func (p *Program) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	root := xml.StartElement{
		Name: xml.Name{Local: "document"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "type"}, Value: "xml/freeswitch-httapi"}},
	}
	if err := e.EncodeToken(root); err != nil {
		return err
	}
	if err := encodePairs(e, "params", p.params); err != nil {
		return err
	}
	if err := encodePairs(e, "variables", p.variables); err != nil {
		return err
	}
	work := xml.StartElement{Name: xml.Name{Local: "work"}}
	if err := e.EncodeToken(work); err != nil {
		return err
	}
	for _, w := range p.work {
		if err := e.Encode(w); err != nil {
			return err
		}
	}
	if err := e.EncodeToken(work.End()); err != nil {
		return err
	}
	return e.EncodeToken(root.End())
}

func encodePairs(e *xml.Encoder, wrapper string, pairs []kv) error {
	start := xml.StartElement{Name: xml.Name{Local: wrapper}}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := e.EncodeElement(p.value, xml.StartElement{Name: xml.Name{Local: p.name}}); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// Bytes renders the program. Identical programs render identical bytes.
func (p *Program) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// String renders the program, panicking on encoder failure. Every element
// value is a string, so encoding cannot fail.
func (p *Program) String() string {
	b, err := p.Bytes()
	if err != nil {
		panic(err)
	}
	return string(b)
}
