// Package mxprobe checks whether an email address is deliverable without
// sending a message: the address must match a fixed pattern, its domain
// must have an MX (or, failing that, an A) record, and the first mail host
// must accept the address at RCPT TO.
//
// Basic usage:
//
//	outcome, err := mxprobe.New().Verify(ctx, "user@example.com")
//
// With options:
//
//	v := mxprobe.New(mxprobe.Options{
//	    HeloDomain: "myapp.com",
//	    MailFrom:   "verify@myapp.com",
//	}).WithLogger(log)
//	outcome, err := v.Verify(ctx, "user@example.com")
package mxprobe

import (
	"github.com/optimode/mxprobe/check"
	"github.com/optimode/mxprobe/types"
)

// CheckResult is a re-export from the types package so that consumers
// don't need to import the types package directly.
type CheckResult = types.CheckResult

// CheckLevel is a re-export.
type CheckLevel = types.CheckLevel

// RecordSource is a re-export of the DNS lookup hook.
type RecordSource = check.RecordSource

// Level constants re-exported.
const (
	LevelSyntax = types.LevelSyntax
	LevelDNS    = types.LevelDNS
	LevelSMTP   = types.LevelSMTP
)

// Failure reasons re-exported.
const (
	ReasonSyntax       = types.ReasonSyntax
	ReasonUnregistered = types.ReasonUnregistered
	ReasonConnect      = types.ReasonConnect
	ReasonGreeting     = types.ReasonGreeting
	ReasonNotESMTP     = types.ReasonNotESMTP
	ReasonSender       = types.ReasonSender
	ReasonRecipient    = types.ReasonRecipient
	ReasonTransport    = types.ReasonTransport
)
