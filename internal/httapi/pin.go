package httapi

func askPIN(p *Program) *Program {
	return p.Collect(soundPIN, digitsPound, "#")
}

// checkPIN compares the collected digits with want. On a mismatch it returns
// the retry program, or a hangup once the attempts are used up.
func checkPIN(c *Call, want string, attempts *int) (*Program, bool) {
	if want != "" && c.Input() == want {
		*attempts = 0
		return nil, true
	}
	*attempts++
	p := NewProgram().Playback(soundBadPIN)
	if *attempts >= maxPINAttempts {
		c.Done()
		return p.Hangup(""), false
	}
	return askPIN(p), false
}
