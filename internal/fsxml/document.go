// Package fsxml renders the XML documents the switch requests over
// mod_xml_curl: directory, dialplan, languages and configuration sections.
// Rendering is deterministic; the same input always yields the same bytes.
package fsxml

import (
	"encoding/xml"
	"fmt"
	"strconv"
)

// DocumentType is the type attribute of every document.
const DocumentType = "freeswitch/xml"

// Document is the envelope around one section.
type Document struct {
	XMLName  xml.Name  `xml:"document"`
	Type     string    `xml:"type,attr"`
	Sections []Section `xml:"section"`
}

// Section holds one rendered body. Body must marshal to the element the
// section expects (domain, context, language, configuration or result).
type Section struct {
	Name        string `xml:"name,attr"`
	Description string `xml:"description,attr,omitempty"`
	Body        any
}

// Result is the body of the not-found section.
type Result struct {
	XMLName xml.Name `xml:"result"`
	Status  string   `xml:"status,attr"`
}

// Param is a name/value pair rendered as <param>.
type Param struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Variable is a name/value pair rendered as <variable>.
type Variable struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func newDocument(section, description string, body any) Document {
	return Document{
		Type:     DocumentType,
		Sections: []Section{{Name: section, Description: description, Body: body}},
	}
}

// Render marshals doc with an XML declaration.
func Render(doc Document) (string, error) {
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling %s document: %w", sectionName(doc), err)
	}
	return xml.Header + string(out) + "\n", nil
}

func sectionName(doc Document) string {
	if len(doc.Sections) == 0 {
		return "empty"
	}
	return doc.Sections[0].Name
}

var notFound = mustRender(newDocument("result", "", Result{Status: "not found"}))

// NotFound is the answer to any lookup the service cannot satisfy.
func NotFound() string {
	return notFound
}

func mustRender(doc Document) string {
	s, err := Render(doc)
	if err != nil {
		panic(err)
	}
	return s
}

func boolString(b bool) string {
	return strconv.FormatBool(b)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

// params builds a Param list from alternating names and values, skipping
// pairs whose value is empty.
func params(kv ...string) []Param {
	out := make([]Param, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		out = append(out, Param{Name: kv[i], Value: kv[i+1]})
	}
	return out
}

// variables is params for <variable> lists.
func variables(kv ...string) []Variable {
	out := make([]Variable, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		out = append(out, Variable{Name: kv[i], Value: kv[i+1]})
	}
	return out
}
