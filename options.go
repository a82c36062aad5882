package mxprobe

import (
	"context"
	"net"
	"time"
)

// HostPolicy decides what happens after probing a mail host.
type HostPolicy int

const (
	// StopAtFirstReachableHost makes the first candidate host's probe the
	// answer, whatever it is, including a failed connection.
	StopAtFirstReachableHost HostPolicy = iota
	// TryNextHostOnTransportError moves on to the next candidate after a
	// connect or transport failure. Server replies remain final.
	TryNextHostOnTransportError
)

// Options configures a Verifier. Zero fields take the defaults shown.
type Options struct {
	// HeloDomain is the client identity sent with EHLO. Default: "github.com"
	HeloDomain string
	// MailFrom is the placeholder sender for MAIL FROM. Default: "test@naver.com"
	MailFrom string
	// ConnectTimeout bounds the TCP connect. Default: 15s
	ConnectTimeout time.Duration
	// ReadTimeout bounds every read and write on the SMTP connection. Default: 15s
	ReadTimeout time.Duration
	// Port is the SMTP port. Default: "25"
	Port string
	// HostPolicy selects single-host or fallback probing. Default: StopAtFirstReachableHost
	HostPolicy HostPolicy
	// DNS configures mail host resolution.
	DNS DNSOptions
	// Proxy routes probes through a SOCKS5 proxy when Address is set.
	Proxy ProxyOptions

	// Resolver overrides DNS lookups. Default: a resolver querying the
	// first nameserver of /etc/resolv.conf (or DNS.Nameserver).
	Resolver RecordSource
	// Dial overrides how mail hosts are dialed. Default: direct, or via Proxy.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// DNSOptions configures resolution.
type DNSOptions struct {
	// Nameserver is the host:port to query. Default: first entry of /etc/resolv.conf
	Nameserver string
	// Timeout bounds each DNS exchange. Default: 5s
	Timeout time.Duration
	// CacheTTL keeps lookup results in memory. Default: 5m. Negative disables caching.
	CacheTTL time.Duration
}

// ProxyOptions configures SOCKS5 egress for probes.
type ProxyOptions struct {
	Address  string // host:port of the SOCKS5 proxy
	Username string
	Password string
}

// DefaultOptions returns the reference configuration.
func DefaultOptions() Options {
	return Options{
		HeloDomain:     "github.com",
		MailFrom:       "test@naver.com",
		ConnectTimeout: 15 * time.Second,
		ReadTimeout:    15 * time.Second,
		Port:           "25",
		HostPolicy:     StopAtFirstReachableHost,
		DNS: DNSOptions{
			Timeout:  5 * time.Second,
			CacheTTL: 5 * time.Minute,
		},
	}
}

// withDefaults fills unset fields from DefaultOptions.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.HeloDomain == "" {
		o.HeloDomain = def.HeloDomain
	}
	if o.MailFrom == "" {
		o.MailFrom = def.MailFrom
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = def.ConnectTimeout
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = def.ReadTimeout
	}
	if o.Port == "" {
		o.Port = def.Port
	}
	if o.DNS.Timeout == 0 {
		o.DNS.Timeout = def.DNS.Timeout
	}
	if o.DNS.CacheTTL == 0 {
		o.DNS.CacheTTL = def.DNS.CacheTTL
	}
	return o
}
