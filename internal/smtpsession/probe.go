package smtpsession

import (
	"context"
)

const (
	codeReady = 220
	codeOK    = 250
)

// Probe runs the verification conversation against host for rcpt:
// Banner(220) → EHLO(250) → MAIL FROM(250) → RCPT TO → QUIT.
//
// It returns the RCPT TO reply. A non-nil error is a *ConnectError, a
// *TransportError or a *ReplyError naming the step that failed. QUIT is sent
// whenever the server is still talking to us, and the connection is closed
// on every return path.
func Probe(ctx context.Context, cfg Config, host, rcpt string) (Reply, error) {
	s, err := Dial(ctx, cfg, host)
	if err != nil {
		return Reply{}, err
	}
	defer func() { _ = s.Close() }()

	r, err := s.ReadReply()
	if err != nil {
		return Reply{}, &TransportError{Step: StepGreeting, Err: err}
	}
	if r.Code != codeReady {
		s.Quit()
		return r, &ReplyError{Step: StepGreeting, Code: r.Code, Text: r.Text()}
	}

	if r, err = s.Cmd("EHLO %s", cfg.HeloDomain); err != nil {
		return Reply{}, &TransportError{Step: StepEHLO, Err: err}
	}
	if r.Code != codeOK {
		s.Quit()
		return r, &ReplyError{Step: StepEHLO, Code: r.Code, Text: r.Text()}
	}

	if r, err = s.Cmd("MAIL FROM: <%s>", cfg.MailFrom); err != nil {
		return Reply{}, &TransportError{Step: StepMailFrom, Err: err}
	}
	if r.Code != codeOK {
		s.Quit()
		return r, &ReplyError{Step: StepMailFrom, Code: r.Code, Text: r.Text()}
	}

	rcptReply, err := s.Cmd("RCPT TO: <%s>", rcpt)
	if err != nil {
		return Reply{}, &TransportError{Step: StepRcptTo, Err: err}
	}

	// The verdict is already known; QUIT is cleanup only.
	s.Quit()

	if rcptReply.Code != codeOK {
		return rcptReply, &ReplyError{Step: StepRcptTo, Code: rcptReply.Code, Text: rcptReply.Text()}
	}
	return rcptReply, nil
}
