package mxprobe

// Status texts carried in Outcome.Message.
const (
	MessageSuccess = "Email Verification Success."
	MessageFailure = "Email Verification Failed."
)

// Outcome is the result of one verification.
type Outcome struct {
	Email string `json:"email"`
	Valid bool   `json:"valid"`
	// Message is MessageSuccess or MessageFailure.
	Message string `json:"message"`
	// FailReason is one of the Reason constants, empty when Valid. A transport
	// failure carries the underlying error after ReasonTransport.
	FailReason string `json:"failReason,omitempty"`
	// Checks lists the stages that ran, in order.
	Checks []CheckResult `json:"checks,omitempty"`
}

// newOutcome builds the outcome from the final verdict. When valid is true
// the reason is ignored.
func newOutcome(email string, valid bool, reason string) Outcome {
	if valid {
		return Outcome{Email: email, Valid: true, Message: MessageSuccess}
	}
	return Outcome{Email: email, Valid: false, Message: MessageFailure, FailReason: reason}
}

// FailedChecks returns those CheckResults that did not pass.
func (o Outcome) FailedChecks() []CheckResult {
	var out []CheckResult
	for _, c := range o.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// CheckFor returns the CheckResult for the given level, if it exists.
// The second return value indicates whether the given level was executed.
func (o Outcome) CheckFor(level CheckLevel) (CheckResult, bool) {
	for _, c := range o.Checks {
		if c.Level == level {
			return c, true
		}
	}
	return CheckResult{}, false
}
