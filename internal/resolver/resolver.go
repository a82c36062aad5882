// Package resolver performs raw MX and A queries against a single nameserver
// and returns record values in the order they appear in the DNS answer.
//
// The standard library resolver sorts MX records by preference and retries
// other nameservers; callers of this package need neither.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"
)

// DefaultResolvConf is read when Config.Nameserver is empty.
const DefaultResolvConf = "/etc/resolv.conf"

// Config configures the resolver.
type Config struct {
	// Nameserver is the host:port to query. Default: first server in ResolvConf.
	Nameserver string
	// ResolvConf is the resolv.conf path. Default: /etc/resolv.conf
	ResolvConf string
	// Timeout bounds each DNS exchange. Default: 5s
	Timeout time.Duration
}

// Resolver queries one nameserver over UDP, falling back to TCP when the
// reply is truncated.
type Resolver struct {
	server string
	udp    *dns.Client
	tcp    *dns.Client
}

// New creates a Resolver. It fails only if no nameserver can be determined.
func New(cfg Config) (*Resolver, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	server := cfg.Nameserver
	if server == "" {
		path := cfg.ResolvConf
		if path == "" {
			path = DefaultResolvConf
		}
		cc, err := dns.ClientConfigFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if len(cc.Servers) == 0 {
			return nil, fmt.Errorf("no nameserver in %s", path)
		}
		server = net.JoinHostPort(cc.Servers[0], cc.Port)
	}

	return &Resolver{
		server: server,
		udp:    &dns.Client{Net: "udp", Timeout: cfg.Timeout},
		tcp:    &dns.Client{Net: "tcp", Timeout: cfg.Timeout},
	}, nil
}

// Server returns the nameserver address in use.
func (r *Resolver) Server() string {
	return r.server
}

// LookupMX returns the MX answer as "<preference> <host>" strings, the host
// keeping its trailing root dot. An empty answer is not an error.
func (r *Resolver) LookupMX(ctx context.Context, domain string) ([]string, error) {
	in, err := r.exchange(ctx, domain, dns.TypeMX)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rr := range in.Answer {
		if mx, ok := rr.(*dns.MX); ok {
			out = append(out, strconv.Itoa(int(mx.Preference))+" "+mx.Mx)
		}
	}
	return out, nil
}

// LookupA returns the IPv4 addresses in the A answer.
func (r *Resolver) LookupA(ctx context.Context, domain string) ([]string, error) {
	in, err := r.exchange(ctx, domain, dns.TypeA)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rr := range in.Answer {
		if a, ok := rr.(*dns.A); ok {
			out = append(out, a.A.String())
		}
	}
	return out, nil
}

func (r *Resolver) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	in, _, err := r.udp.ExchangeContext(ctx, m, r.server)
	if err == nil && in.Truncated {
		in, _, err = r.tcp.ExchangeContext(ctx, m, r.server)
	}
	if err != nil {
		// A deadline from ctx surfaces as an i/o timeout; report the
		// caller's context error so it stays distinguishable.
		cause := err
		if ctxErr := ctx.Err(); ctxErr != nil {
			cause = ctxErr
		}
		return nil, &net.DNSError{
			UnwrapErr: cause,
			Err:       err.Error(),
			Name:      name,
			Server:    r.server,
			IsTimeout: isTimeout(err),
		}
	}

	switch in.Rcode {
	case dns.RcodeSuccess:
		return in, nil
	case dns.RcodeNameError:
		return nil, &net.DNSError{
			Err:        "no such host",
			Name:       name,
			Server:     r.server,
			IsNotFound: true,
		}
	default:
		return nil, &net.DNSError{
			Err:    fmt.Sprintf("server replied %s to %s query", dns.RcodeToString[in.Rcode], dns.TypeToString[qtype]),
			Name:   name,
			Server: r.server,
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
