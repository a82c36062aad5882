// Package check contains the stages of the mxprobe pipeline: syntax, mail
// host resolution and the SMTP probe. Each stage reports a types.CheckResult
// whose Reason is drawn from the fixed catalog in the types package.
// These types can be used directly, but the recommended approach is
// to use mxprobe.New and Verifier.Verify.
package check
