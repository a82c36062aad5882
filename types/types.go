// Package types contains the shared types for mxprobe.
// This package does not import anything from other mxprobe packages
// to avoid circular imports.
package types

// CheckLevel identifies the pipeline stage.
type CheckLevel = string

const (
	LevelSyntax CheckLevel = "syntax"
	LevelDNS    CheckLevel = "dns"
	LevelSMTP   CheckLevel = "smtp"
)

// Fixed failure reasons. These strings are the observable contract of the
// verification outcome and must not change.
const (
	ReasonSyntax       = "It's not in email format."
	ReasonUnregistered = "This is not a formally registered email domain."
	ReasonConnect      = "Error occurred."
	ReasonGreeting     = "Invalid header."
	ReasonNotESMTP     = "Not ESMTP."
	ReasonSender       = "Sender rejected"
	ReasonRecipient    = "Address is not valid"
	ReasonTransport    = "TCP Send, Receive Error occurred."
)

// CheckResult is the outcome of a single pipeline stage.
type CheckResult struct {
	Level    CheckLevel `json:"level"`
	Passed   bool       `json:"passed"`
	Reason   string     `json:"reason,omitempty"`  // fixed catalog text, empty when passed
	Details  string     `json:"details,omitempty"` // diagnostic text, not part of the contract
	Hosts    []string   `json:"hosts,omitempty"`   // candidate mail hosts in DNS order
	MXHost   string     `json:"mxHost,omitempty"`  // host whose probe produced the verdict
	SMTPCode int        `json:"smtpCode,omitempty"`
}
