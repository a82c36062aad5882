package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/optimode/mxprobe"
	"github.com/optimode/mxprobe/internal/ratelimit"
)

// ErrUndeliverable is returned when at least one address failed verification.
var ErrUndeliverable = errors.New("one or more addresses failed verification")

type verifyFlags struct {
	rate       float64
	domainRate float64
	heloDomain string
	mailFrom   string
	port       string
	tryNext    bool

	// tryNextSet records an explicit --try-next-host, so that false can
	// override the config file.
	tryNextSet bool
}

func newVerifyCmd(a *app) *cobra.Command {
	var f verifyFlags

	cmd := &cobra.Command{
		Use:   "verify [address...]",
		Short: "Verify addresses and print one JSON outcome per line",
		Long: `Verifies each address in turn and prints its outcome as a JSON object on
standard output. Without arguments, addresses are read from standard input,
one per line; blank lines are skipped.

The command exits non-zero if any address is not deliverable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.tryNextSet = cmd.Flags().Changed("try-next-host")
			return runVerify(cmd, a, f, args)
		},
	}

	fl := cmd.Flags()
	fl.Float64Var(&f.rate, "rate", 0, "Maximum verifications per second (0: unlimited)")
	fl.Float64Var(&f.domainRate, "domain-rate", 0, "Maximum verifications per second per domain (0: unlimited)")
	fl.StringVar(&f.heloDomain, "helo", "", "Client identity sent with EHLO")
	fl.StringVar(&f.mailFrom, "mail-from", "", "Sender address used for MAIL FROM")
	fl.StringVar(&f.port, "port", "", "SMTP port")
	fl.BoolVar(&f.tryNext, "try-next-host", false, "Try the next mail host after a connection failure")
	return cmd
}

func (f verifyFlags) apply(o *mxprobe.Options) {
	if f.heloDomain != "" {
		o.HeloDomain = f.heloDomain
	}
	if f.mailFrom != "" {
		o.MailFrom = f.mailFrom
	}
	if f.port != "" {
		o.Port = f.port
	}
	if f.tryNextSet {
		o.HostPolicy = mxprobe.StopAtFirstReachableHost
		if f.tryNext {
			o.HostPolicy = mxprobe.TryNextHostOnTransportError
		}
	}
}

func runVerify(cmd *cobra.Command, a *app, f verifyFlags, args []string) error {
	addresses := args
	if len(addresses) == 0 {
		var err error
		if addresses, err = readAddresses(a); err != nil {
			return err
		}
	}

	opts := a.verifierOptions()
	f.apply(&opts)
	v := mxprobe.New(opts).WithLogger(a.log)
	limiter := ratelimit.New(f.rate, f.domainRate, 1)

	ctx := cmd.Context()
	enc := json.NewEncoder(cmd.OutOrStdout())
	start := time.Now()
	failed := 0

	a.log.Info().Int("addresses", len(addresses)).Msg("verification started")
	for _, address := range addresses {
		_, domain, _ := strings.Cut(address, "@")
		if err := limiter.Wait(ctx, domain); err != nil {
			return err
		}

		outcome, err := v.Verify(ctx, address)
		if err != nil {
			return err
		}
		if !outcome.Valid {
			failed++
		}
		if err := enc.Encode(outcome); err != nil {
			return fmt.Errorf("write outcome: %w", err)
		}
	}
	a.log.Info().
		Int("addresses", len(addresses)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("verification finished")

	if failed > 0 {
		return fmt.Errorf("%d of %d: %w", failed, len(addresses), ErrUndeliverable)
	}
	return nil
}

func readAddresses(a *app) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(a.stdin)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read addresses: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("no addresses given")
	}
	return out, nil
}
