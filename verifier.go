package mxprobe

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/optimode/mxprobe/check"
	"github.com/optimode/mxprobe/internal/dnscache"
	"github.com/optimode/mxprobe/internal/logger"
	"github.com/optimode/mxprobe/internal/parse"
	"github.com/optimode/mxprobe/internal/resolver"
	"github.com/optimode/mxprobe/internal/smtpsession"
	"github.com/optimode/mxprobe/metrics"
)

// Verifier runs the syntax, DNS and SMTP stages for an address.
// Instantiate with the New() function. A Verifier is safe for concurrent use.
type Verifier struct {
	opts    Options
	err     error // configuration error, returned on Verify()
	syntax  *check.SyntaxChecker
	dns     *check.DNSChecker
	smtp    *check.SMTPChecker
	log     zerolog.Logger
	metrics *metrics.Recorder
}

// New creates a Verifier. Without arguments DefaultOptions apply; zero
// fields of a given Options are filled from DefaultOptions.
// Invalid options are reported by Verify, which then performs no I/O.
func New(opts ...Options) *Verifier {
	o := DefaultOptions()
	if len(opts) > 0 {
		o = opts[0].withDefaults()
	}

	v := &Verifier{
		opts:   o,
		syntax: check.NewSyntaxChecker(),
		log:    zerolog.Nop(),
	}
	if err := o.validate(); err != nil {
		v.err = err
		return v
	}

	source := o.Resolver
	if source == nil {
		r, err := resolver.New(resolver.Config{
			Nameserver: o.DNS.Nameserver,
			Timeout:    o.DNS.Timeout,
		})
		if err != nil {
			v.err = fmt.Errorf("%w: %v", ErrNoResolver, err)
			return v
		}
		source = r
	}
	if o.DNS.CacheTTL > 0 {
		source = dnscache.New(source, o.DNS.CacheTTL)
	}
	v.dns = check.NewDNSChecker(source)

	dial := smtpsession.DialFunc(o.Dial)
	if dial == nil {
		d, err := smtpsession.NewDialer(o.Proxy.Address, o.Proxy.Username, o.Proxy.Password)
		if err != nil {
			v.err = fmt.Errorf("%w: %v", ErrInvalidOptions, err)
			return v
		}
		dial = d
	}
	v.smtp = check.NewSMTPChecker(check.SMTPConfig{
		Session: smtpsession.Config{
			HeloDomain:     o.HeloDomain,
			MailFrom:       o.MailFrom,
			ConnectTimeout: o.ConnectTimeout,
			ReadTimeout:    o.ReadTimeout,
			Port:           o.Port,
			Dial:           dial,
		},
		StopAtFirstReachableHost: o.HostPolicy == StopAtFirstReachableHost,
	})
	return v
}

// WithLogger sets the logger used for stage and verdict logging.
// The default logger discards everything.
func (v *Verifier) WithLogger(log zerolog.Logger) *Verifier {
	v.log = log
	return v
}

// WithMetrics sets the recorder that observes verifications.
func (v *Verifier) WithMetrics(r *metrics.Recorder) *Verifier {
	v.metrics = r
	return v
}

// Options returns the effective options, defaults applied.
func (v *Verifier) Options() Options {
	return v.opts
}

// Verify runs the pipeline on address. It short-circuits on the first failing
// stage; every network or protocol failure is reported in the Outcome, so the
// error is non-nil only when the Verifier is misconfigured.
func (v *Verifier) Verify(ctx context.Context, address string) (Outcome, error) {
	if v.err != nil {
		return Outcome{}, v.err
	}

	ctx = logger.WithLogger(ctx, v.log)
	if logger.CorrelationIDFromContext(ctx) == "" {
		ctx = logger.WithCorrelationID(ctx, logger.NewCorrelationID())
	}
	log := logger.FromContext(ctx)
	start := time.Now()

	parsed := parse.NewEmail(address)
	var checks []CheckResult

	cr := v.stage(ctx, LevelSyntax, func() CheckResult { return v.syntax.Check(ctx, parsed) })
	checks = append(checks, cr)

	if cr.Passed {
		cr = v.stage(ctx, LevelDNS, func() CheckResult { return v.dns.Check(ctx, parsed) })
		checks = append(checks, cr)
	}

	if cr.Passed {
		hosts := cr.Hosts
		cr = v.stage(ctx, LevelSMTP, func() CheckResult { return v.smtp.Check(ctx, parsed, hosts) })
		checks = append(checks, cr)
		v.metrics.ObserveSMTPCode(cr.SMTPCode)
	}

	outcome := newOutcome(address, cr.Passed, cr.Reason)
	outcome.Checks = checks
	v.metrics.ObserveVerification(string(cr.Level), outcome.Valid)

	ev := log.Info()
	if !outcome.Valid {
		ev = ev.Str("fail_reason", outcome.FailReason).Str("stage", string(cr.Level))
	}
	ev.Str("email", address).
		Bool("valid", outcome.Valid).
		Dur("duration", time.Since(start)).
		Msg(outcome.Message)

	return outcome, nil
}

func (v *Verifier) stage(ctx context.Context, level CheckLevel, run func() CheckResult) CheckResult {
	log := logger.FromContext(ctx)
	log.Debug().Str("stage", string(level)).Msg("stage started")

	start := time.Now()
	cr := run()
	v.metrics.ObserveStage(string(level), time.Since(start))

	log.Debug().
		Str("stage", string(level)).
		Bool("passed", cr.Passed).
		Str("details", cr.Details).
		Msg("stage finished")
	return cr
}

// ConcurrencyOptions configures concurrent processing for VerifyMany.
type ConcurrencyOptions struct {
	// Workers is the number of concurrent goroutines. Default: 5
	Workers int
}

// VerifyMany verifies multiple addresses concurrently. Each address still
// goes through its own sequential pipeline. The result order matches the
// input slice order.
// Addresses are sorted by domain internally so lookups for the same domain
// land close together in the DNS cache.
func (v *Verifier) VerifyMany(ctx context.Context, addresses []string, opts ...ConcurrencyOptions) ([]Outcome, error) {
	if v.err != nil {
		return nil, v.err
	}

	workers := 5
	if len(opts) > 0 && opts[0].Workers > 0 {
		workers = opts[0].Workers
	}

	outcomes := make([]Outcome, len(addresses))
	type job struct {
		idx     int
		address string
		domain  string
	}

	jobSlice := make([]job, len(addresses))
	for i, a := range addresses {
		_, domain, _ := strings.Cut(a, "@")
		jobSlice[i] = job{idx: i, address: a, domain: strings.ToLower(domain)}
	}
	sort.SliceStable(jobSlice, func(i, j int) bool {
		return jobSlice[i].domain < jobSlice[j].domain
	})

	bufSize := min(len(addresses), 1000)
	jobs := make(chan job, bufSize)
	go func() {
		for _, j := range jobSlice {
			jobs <- j
		}
		close(jobs)
	}()

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				// Verify only fails on configuration errors, checked above.
				outcomes[j.idx], _ = v.Verify(ctx, j.address)
			}
		}()
	}

	wg.Wait()
	return outcomes, nil
}

func (o Options) validate() error {
	switch {
	case o.ConnectTimeout < 0:
		return fmt.Errorf("%w: negative connect timeout", ErrInvalidOptions)
	case o.ReadTimeout < 0:
		return fmt.Errorf("%w: negative read timeout", ErrInvalidOptions)
	case o.DNS.Timeout < 0:
		return fmt.Errorf("%w: negative DNS timeout", ErrInvalidOptions)
	case o.HostPolicy != StopAtFirstReachableHost && o.HostPolicy != TryNextHostOnTransportError:
		return fmt.Errorf("%w: unknown host policy %d", ErrInvalidOptions, o.HostPolicy)
	}
	if p, err := strconv.Atoi(o.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("%w: port %q", ErrInvalidOptions, o.Port)
	}
	return nil
}
