package email

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPlaceholder is returned when a template names a placeholder
// outside the supported set.
var ErrUnknownPlaceholder = errors.New("unknown template placeholder")

// Template placeholders.
const (
	CallerIDName           = "caller_id_name"
	CallerIDNumber         = "caller_id_number"
	VoicemailNameFormatted = "voicemail_name_formatted"
	MessageDate            = "message_date"
	MessageDuration        = "message_duration"
	PlaceholderMessage     = "message"
	SIPToUser              = "sip_to_user"
	DialedUser             = "dialed_user"
)

var placeholders = map[string]bool{
	CallerIDName:           true,
	CallerIDNumber:         true,
	VoicemailNameFormatted: true,
	MessageDate:            true,
	MessageDuration:        true,
	PlaceholderMessage:     true,
	SIPToUser:              true,
	DialedUser:             true,
}

// Default templates, used when no override is stored.
const (
	DefaultVoicemailSubject  = "Voicemail from {caller_id_name} <{caller_id_number}> {message_duration}"
	DefaultVoicemailBody     = "You have a new voice message in {voicemail_name_formatted}.\n\nFrom: {caller_id_name} <{caller_id_number}>\nReceived: {message_date}\nLength: {message_duration}\n\n{message}\n"
	DefaultMissedCallSubject = "Missed call from {caller_id_name} <{caller_id_number}>"
	DefaultMissedCallBody    = "You missed a call to {sip_to_user} from {caller_id_name} <{caller_id_number}>.\n"
)

// Render substitutes {name} placeholders in tmpl. "{{" and "}}" produce
// literal braces. A placeholder outside the supported set, or an unclosed
// brace, fails the whole render; missing values render empty.
func Render(tmpl string, vars map[string]string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed placeholder at offset %d: %w", i, ErrUnknownPlaceholder)
			}
			name := tmpl[i+1 : i+1+end]
			if !placeholders[name] {
				return "", fmt.Errorf("%w: {%s}", ErrUnknownPlaceholder, name)
			}
			b.WriteString(vars[name])
			i += end + 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// FormatDuration converts seconds into a human-readable string like "2m 15s".
func FormatDuration(secs int) string {
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	m := secs / 60
	s := secs % 60
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
