package check

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/optimode/mxprobe/internal/logger"
	"github.com/optimode/mxprobe/internal/parse"
	"github.com/optimode/mxprobe/types"
)

// ErrNoMailHost means the domain resolved but yielded no usable mail host.
var ErrNoMailHost = errors.New("no MX or A record")

// RecordSource returns raw DNS record values in answer order: MX values as
// "<preference> <host>", A values as address text.
type RecordSource interface {
	LookupMX(ctx context.Context, domain string) ([]string, error)
	LookupA(ctx context.Context, domain string) ([]string, error)
}

// DNSChecker resolves the candidate mail hosts of the address's domain.
type DNSChecker struct {
	source RecordSource
}

func NewDNSChecker(source RecordSource) *DNSChecker {
	return &DNSChecker{source: source}
}

func (c *DNSChecker) Check(ctx context.Context, email parse.Email) types.CheckResult {
	level := types.LevelDNS

	if !email.Valid {
		return types.CheckResult{Level: level, Passed: false, Reason: types.ReasonSyntax, Details: "skipped: invalid email"}
	}

	hosts, err := c.Resolve(ctx, email.Domain)
	if err != nil {
		return types.CheckResult{
			Level:   level,
			Passed:  false,
			Reason:  types.ReasonUnregistered,
			Details: err.Error(),
		}
	}

	return types.CheckResult{
		Level:   level,
		Passed:  true,
		Details: fmt.Sprintf("%d mail host(s) found", len(hosts)),
		Hosts:   hosts,
	}
}

// Resolve returns the domain's mail hosts. MX records are used when present;
// otherwise the A records stand in. The DNS answer order is kept as is.
func (c *DNSChecker) Resolve(ctx context.Context, domain string) ([]string, error) {
	log := logger.FromContext(ctx)

	records, err := c.source.LookupMX(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("MX lookup failed: %w", err)
	}
	if len(records) == 0 {
		log.Debug().Str("domain", domain).Msg("no MX records, falling back to A")
		records, err = c.source.LookupA(ctx, domain)
		if err != nil {
			return nil, fmt.Errorf("A lookup failed: %w", err)
		}
	}

	hosts := MailHosts(records)
	if len(hosts) == 0 {
		return nil, fmt.Errorf("%s: %w", domain, ErrNoMailHost)
	}
	log.Debug().Str("domain", domain).Strs("hosts", hosts).Msg("mail hosts resolved")
	return hosts, nil
}

// MailHosts turns raw record values into host names. A single-token value
// is used as is; otherwise the second token is the host, minus one trailing
// root dot. Values that leave no host (such as a null MX) are dropped.
func MailHosts(records []string) []string {
	hosts := make([]string, 0, len(records))
	for _, rec := range records {
		f := strings.Split(rec, " ")
		host := f[0]
		if len(f) > 1 {
			host = strings.TrimSuffix(f[1], ".")
		}
		if host == "" {
			continue
		}
		hosts = append(hosts, host)
	}
	return hosts
}
