package check

import (
	"context"
	"errors"
	"fmt"

	"github.com/optimode/mxprobe/internal/logger"
	"github.com/optimode/mxprobe/internal/parse"
	"github.com/optimode/mxprobe/internal/smtpsession"
	"github.com/optimode/mxprobe/types"
)

// SMTPConfig is the SMTP checker configuration.
type SMTPConfig struct {
	Session smtpsession.Config
	// StopAtFirstReachableHost makes the first candidate's probe final, even
	// when it could not connect. When false, connect and transport failures
	// move on to the next candidate; server verdicts are always final.
	StopAtFirstReachableHost bool
}

// SMTPChecker performs the RCPT TO probe against the candidate mail hosts.
type SMTPChecker struct {
	cfg   SMTPConfig
	probe func(ctx context.Context, cfg smtpsession.Config, host, rcpt string) (smtpsession.Reply, error)
}

func NewSMTPChecker(cfg SMTPConfig) *SMTPChecker {
	return &SMTPChecker{cfg: cfg, probe: smtpsession.Probe}
}

// Check probes hosts in order for email.
func (c *SMTPChecker) Check(ctx context.Context, email parse.Email, hosts []string) types.CheckResult {
	level := types.LevelSMTP
	log := logger.FromContext(ctx)

	if !email.Valid {
		return types.CheckResult{Level: level, Passed: false, Reason: types.ReasonSyntax, Details: "skipped: invalid email"}
	}
	if len(hosts) == 0 {
		return types.CheckResult{Level: level, Passed: false, Reason: types.ReasonUnregistered, Details: "no candidate mail hosts"}
	}

	var last types.CheckResult
	for _, host := range hosts {
		// Check context cancellation before each attempt
		if err := ctx.Err(); err != nil {
			return types.CheckResult{
				Level:   level,
				Passed:  false,
				Reason:  types.ReasonConnect,
				Details: fmt.Sprintf("context cancelled: %v", err),
			}
		}

		reply, err := c.probe(ctx, c.cfg.Session, host, email.Raw)
		last = verdict(host, reply, err)
		log.Debug().
			Str("mx_host", host).
			Bool("passed", last.Passed).
			Int("smtp_code", last.SMTPCode).
			Str("details", last.Details).
			Msg("probe finished")

		if c.cfg.StopAtFirstReachableHost || !retryable(err) {
			return last
		}
	}
	return last
}

// verdict maps a probe outcome onto the reason catalog.
func verdict(host string, reply smtpsession.Reply, err error) types.CheckResult {
	res := types.CheckResult{Level: types.LevelSMTP, MXHost: host, SMTPCode: reply.Code}

	if err == nil {
		res.Passed = true
		res.Details = "RCPT TO accepted"
		return res
	}
	res.Details = err.Error()

	var (
		ce *smtpsession.ConnectError
		te *smtpsession.TransportError
		re *smtpsession.ReplyError
	)
	switch {
	case errors.As(err, &ce):
		res.Reason = types.ReasonConnect
	case errors.As(err, &te):
		res.Reason = fmt.Sprintf("%s %v", types.ReasonTransport, te.Err)
	case errors.As(err, &re):
		res.Reason = replyReason(re.Step)
	default:
		res.Reason = fmt.Sprintf("%s %v", types.ReasonTransport, err)
	}
	return res
}

func replyReason(step smtpsession.Step) string {
	switch step {
	case smtpsession.StepGreeting:
		return types.ReasonGreeting
	case smtpsession.StepEHLO:
		return types.ReasonNotESMTP
	case smtpsession.StepMailFrom:
		return types.ReasonSender
	default:
		return types.ReasonRecipient
	}
}

func retryable(err error) bool {
	var (
		ce *smtpsession.ConnectError
		te *smtpsession.TransportError
	)
	return errors.As(err, &ce) || errors.As(err, &te)
}
