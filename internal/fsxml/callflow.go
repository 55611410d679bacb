package fsxml

import (
	"encoding/xml"
	"fmt"
	"regexp"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// ExtensionNode is a dialplan <extension>.
type ExtensionNode struct {
	XMLName    xml.Name        `xml:"extension"`
	Name       string          `xml:"name,attr"`
	Continue   string          `xml:"continue,attr"`
	UUID       string          `xml:"uuid,attr,omitempty"`
	Conditions []ConditionNode `xml:"condition"`
}

// ConditionNode is an extension <condition>.
type ConditionNode struct {
	Field      string       `xml:"field,attr"`
	Expression string       `xml:"expression,attr"`
	Actions    []ActionNode `xml:"action"`
}

// ActionNode is a condition <action>.
type ActionNode struct {
	Application string `xml:"application,attr"`
	Data        string `xml:"data,attr,omitempty"`
}

func exactNumber(n string) string {
	return "^" + regexp.QuoteMeta(n) + "$"
}

// CallFlowXML renders the dialplan rows of a call flow: the feature code
// hands the call to the toggle handler at httapiURL, the extension routes to
// the day or night destination for the flow's current status.
func CallFlowXML(f models.CallFlow, httapiURL string) (string, error) {
	app, data := f.NightApp, f.NightData
	if f.Status {
		app, data = f.DayApp, f.DayData
	}
	setID := ActionNode{Application: "set", Data: "call_flow_uuid=" + f.ID}

	var exts []ExtensionNode
	if f.FeatureCode != "" {
		exts = append(exts, ExtensionNode{
			Name:     f.Name + "-toggle",
			Continue: "false",
			UUID:     f.ID,
			Conditions: []ConditionNode{{
				Field:      "destination_number",
				Expression: exactNumber(f.FeatureCode),
				Actions: []ActionNode{
					{Application: "answer"},
					{Application: "sleep", Data: "200"},
					setID,
					{Application: "httapi", Data: "{url=" + httapiURL + "/callflowtoggle}"},
				},
			}},
		})
	}
	if f.Extension != "" && app != "" {
		exts = append(exts, ExtensionNode{
			Name:     f.Name,
			Continue: "false",
			UUID:     f.ID,
			Conditions: []ConditionNode{{
				Field:      "destination_number",
				Expression: exactNumber(f.Extension),
				Actions: []ActionNode{
					setID,
					{Application: app, Data: data},
				},
			}},
		})
	}

	out, err := xml.MarshalIndent(exts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling call flow %s: %w", f.ID, err)
	}
	return string(out), nil
}

// CallFlowDialplan builds the dialplan row for f in the tenant's context. An
// existing row keeps its id and sequence.
func CallFlowDialplan(f models.CallFlow, domain, httapiURL string, existing *models.Dialplan) (*models.Dialplan, error) {
	body, err := CallFlowXML(f, httapiURL)
	if err != nil {
		return nil, err
	}
	dp := &models.Dialplan{Sequence: 100}
	if existing != nil {
		*dp = *existing
	}
	tenantID := f.TenantID
	dp.TenantID = &tenantID
	dp.AppID = "call-flow"
	dp.Context = domain
	dp.Name = f.Name
	dp.Number = f.Extension
	dp.Category = models.CategoryCallFlow
	dp.XML = body
	dp.Enabled = f.Enabled
	return dp, nil
}
