package mxprobe

import "errors"

var (
	// ErrInvalidOptions is returned by Verify when the Options given to New
	// cannot be used (negative timeouts, non-numeric port).
	ErrInvalidOptions = errors.New("mxprobe: invalid options")

	// ErrNoResolver is returned by Verify when no Resolver was given and the
	// system nameserver could not be determined.
	ErrNoResolver = errors.New("mxprobe: no DNS resolver available")
)
