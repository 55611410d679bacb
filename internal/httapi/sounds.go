package httapi

// Input names the switch posts back.
const (
	InputDigits    = "pb_input"
	InputRecording = "rd_input"
)

// Bind patterns.
const (
	digitsPound = `~\d+#`
	oneDigit    = `~[0-9*#]`
)

const (
	errorFile = "silence_stream://250"
	beepFile  = "tone_stream://%(250,0,1000)"
)

// Sound files, relative to the switch's sound prefix.
const (
	soundCannotComplete = "ivr/ivr-call_cannot_be_completed_as_dialed.wav"
	soundGoodbye        = "voicemail/vm-goodbye.wav"
	soundPIN            = "ivr/ivr-please_enter_pin_followed_by_pound.wav"
	soundBadPIN         = "ivr/ivr-pin_or_extension_is-invalid.wav"
	soundEnterNumber    = "ivr/ivr-enter_destination_telephone_number.wav"
	soundEnterID        = "ivr/ivr-please_enter_the_number_followed_by_pound.wav"
	soundRecordMessage  = "ivr/ivr-record_message.wav"
	soundSaved          = "ivr/ivr-recording_saved.wav"
	soundInvalid        = "ivr/ivr-that_was_an_invalid_entry.wav"
	soundFeatureOn      = "ivr/ivr-call_forwarding_has_been_set.wav"
	soundFeatureOff     = "ivr/ivr-call_forwarding_has_been_cancelled.wav"
	soundDNDOn          = "ivr/ivr-dnd_activated.wav"
	soundDNDOff         = "ivr/ivr-dnd_cancelled.wav"
	soundLoggedIn       = "ivr/ivr-you_are_now_logged_in.wav"
	soundLoggedOut      = "ivr/ivr-you_are_now_logged_out.wav"
	soundDayMode        = "ivr/ivr-day_mode.wav"
	soundNightMode      = "ivr/ivr-night_mode.wav"
	soundConfPIN        = "conference/conf-pin.wav"
	soundConfBadPIN     = "conference/conf-bad-pin.wav"
	soundConfLocked     = "conference/conf-locked.wav"
	soundConfSayName    = "conference/conf-rec_name.wav"
	soundConfRecording  = "conference/conf-recording_started.wav"
	soundThankYou       = "ivr/ivr-thank_you.wav"
	soundWelcome        = "ivr/ivr-welcome.wav"
)

// phrase references a say macro with optional arguments.
func phrase(name string, args ...string) string {
	s := "phrase:" + name
	for _, a := range args {
		s += ":" + a
	}
	return s
}
