package fsxml

import (
	"encoding/xml"
	"path"
	"strings"

	"github.com/flowpbx/switchyard/internal/database/models"
)

// Voice locates prompt files for a language.
type Voice struct {
	SoundsDir string
	Dialect   string
	Voice     string
}

// LanguageNode is a <language> carrying one phrase macro.
type LanguageNode struct {
	XMLName     xml.Name    `xml:"language"`
	Name        string      `xml:"name,attr"`
	SayModule   string      `xml:"say-module,attr"`
	SoundPrefix string      `xml:"sound-prefix,attr"`
	TTSEngine   string      `xml:"tts-engine,attr,omitempty"`
	TTSVoice    string      `xml:"tts-voice,attr,omitempty"`
	Macros      []MacroNode `xml:"phrases>macros>macro"`
}

// MacroNode is a phrase macro matching any input.
type MacroNode struct {
	Name  string    `xml:"name,attr"`
	Input InputNode `xml:"input"`
}

// InputNode holds the macro's single match.
type InputNode struct {
	Pattern string        `xml:"pattern,attr"`
	Match   []MacroAction `xml:"match>action"`
}

// MacroAction is one step of a phrase macro.
type MacroAction struct {
	Function string `xml:"function,attr"`
	Data     string `xml:"data,attr"`
}

// SoundPrefix returns <sounds>/<lang>/<dialect>/<voice>. A language such
// as "en-gb" carries its own dialect.
func (v Voice) SoundPrefix(lang string) string {
	lang, dialect, ok := strings.Cut(lang, "-")
	if !ok {
		dialect = v.Dialect
	}
	return path.Join(v.SoundsDir, lang, dialect, v.Voice)
}

// LanguageDocument renders phrase p as macro name for lang.
func LanguageDocument(lang string, v Voice, p *models.Phrase) Document {
	actions := make([]MacroAction, 0, len(p.Details))
	for _, d := range p.Details {
		actions = append(actions, MacroAction{Function: d.Function, Data: d.Data})
	}
	sayModule, _, _ := strings.Cut(lang, "-")
	return newDocument("languages", "", LanguageNode{
		Name:        lang,
		SayModule:   sayModule,
		SoundPrefix: v.SoundPrefix(lang),
		Macros: []MacroNode{{
			Name:  p.ID,
			Input: InputNode{Pattern: "(.*)", Match: actions},
		}},
	})
}
