package smtpsession

import (
	"errors"
	"fmt"
)

// Reply framing violations.
var (
	ErrLineTooLong  = errors.New("SMTP reply line too long")
	ErrTooManyLines = errors.New("SMTP reply has too many lines")
)

// Step names the point of the conversation an error belongs to.
type Step string

const (
	StepConnect  Step = "connect"
	StepGreeting Step = "greeting"
	StepEHLO     Step = "EHLO"
	StepMailFrom Step = "MAIL FROM"
	StepRcptTo   Step = "RCPT TO"
)

// ConnectError means the TCP connection could not be established.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TransportError is a read or write failure (timeout, reset, malformed line)
// after the connection was established.
type TransportError struct {
	Step Step
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ReplyError is a well-formed reply carrying an unexpected code.
type ReplyError struct {
	Step Step
	Code int
	Text string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s rejected: %d %s", e.Step, e.Code, e.Text)
}
