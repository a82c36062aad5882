package check

import (
	"context"

	"github.com/optimode/mxprobe/internal/parse"
	"github.com/optimode/mxprobe/types"
)

// SyntaxChecker rejects addresses that do not match parse.Pattern.
// It never performs I/O.
type SyntaxChecker struct{}

func NewSyntaxChecker() *SyntaxChecker {
	return &SyntaxChecker{}
}

func (c *SyntaxChecker) Check(_ context.Context, email parse.Email) types.CheckResult {
	level := types.LevelSyntax

	if !email.Valid {
		return types.CheckResult{
			Level:   level,
			Passed:  false,
			Reason:  types.ReasonSyntax,
			Details: "address does not match " + parse.Pattern.String(),
		}
	}
	return types.CheckResult{Level: level, Passed: true, Details: "syntax ok"}
}
