package fsxml

import (
	"encoding/xml"
	"strings"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// NotFoundExtension answers inbound calls to numbers no route claims.
const NotFoundExtension = `<extension name="not-found" continue="false">` +
	`<condition field="destination_number" expression="^(.*)$">` +
	`<action application="log" data="WARNING [inbound routes] 404 not found ${sip_network_ip} $1"/>` +
	`<action application="respond" data="404"/>` +
	`</condition></extension>`

// ContextNode is a <context> whose body is the concatenated dialplan XML.
type ContextNode struct {
	XMLName xml.Name `xml:"context"`
	Name    string   `xml:"name,attr"`
	Body    string   `xml:",innerxml"`
}

// DialplanDocument emits every row in order, skipping rows whose app id is
// excluded. The caller supplies enabled, hostname-filtered rows sorted by
// sequence.
func DialplanDocument(context string, rows []models.Dialplan, excludes []string) Document {
	skip := make(map[string]bool, len(excludes))
	for _, e := range excludes {
		skip[e] = true
	}
	var b strings.Builder
	b.WriteString("\n")
	for _, row := range rows {
		if row.AppID != "" && skip[row.AppID] {
			continue
		}
		b.WriteString(strings.TrimSpace(row.XML))
		b.WriteString("\n")
	}
	return newDocument("dialplan", "", ContextNode{Name: context, Body: b.String()})
}

// PublicDocument renders the public context for one destination. When no
// inbound route claims the number the not-found extension is appended so
// the switch rejects the call instead of falling through.
func PublicDocument(rows []models.Dialplan, destination string) Document {
	matched := false
	for _, row := range rows {
		if row.Category == models.CategoryInbound && row.Number == destination {
			matched = true
			break
		}
	}
	if !matched {
		rows = append(rows[:len(rows):len(rows)], models.Dialplan{XML: NotFoundExtension})
	}
	return DialplanDocument(models.ContextPublic, rows, nil)
}
