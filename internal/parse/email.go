package parse

import (
	"regexp"
	"strings"
)

// Pattern is the accepted address shape: a local part of letters, digits and
// "+_.-", an "@", then at least one character of anything but a line
// terminator (CR, LF, NEL, LS, PS).
var Pattern = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@([^\r\n\x{85}\x{2028}\x{2029}]+)$`)

// Email is the internal representation of a parsed email address.
// The check/ packages receive this as parameter.
type Email struct {
	Raw    string // the original input, untouched
	Local  string // the part before the first @
	Domain string // the part after the first @
	Valid  bool   // false if Raw does not match Pattern
}

// NewEmail matches raw against Pattern and splits it at the first "@".
// Raw is always populated. No case folding, trimming or length limits apply.
func NewEmail(raw string) Email {
	if !Pattern.MatchString(raw) {
		return Email{Raw: raw, Valid: false}
	}

	local, domain, _ := strings.Cut(raw, "@")
	return Email{
		Raw:    raw,
		Local:  local,
		Domain: domain,
		Valid:  true,
	}
}
