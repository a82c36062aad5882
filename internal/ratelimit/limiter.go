// Package ratelimit paces verifications globally and per recipient domain,
// so that a batch does not hammer a single mail provider.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// minIdle is the shortest time a domain limiter is kept after its last use.
const minIdle = time.Minute

// Limiter combines a global limiter with lazily created per-domain limiters.
// A domain limiter unused for long enough to have refilled completely is
// dropped, so the set of tracked domains stays bounded by recent traffic.
type Limiter struct {
	global *rate.Limiter

	perDomain rate.Limit
	burst     int
	idle      time.Duration

	mu        sync.Mutex
	domains   map[string]*domainLimiter
	lastSweep time.Time

	now func() time.Time
}

type domainLimiter struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

// New creates a Limiter allowing global events per second overall and
// perDomain events per second for each domain, both with the given burst.
// A non-positive rate means no limit on that axis.
func New(global, perDomain float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	idle := minIdle
	if perDomain > 0 {
		if refill := time.Duration(float64(burst) / perDomain * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &Limiter{
		global:    rate.NewLimiter(limit(global), burst),
		perDomain: limit(perDomain),
		burst:     burst,
		idle:      idle,
		domains:   make(map[string]*domainLimiter),
		now:       time.Now,
	}
}

func limit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

// Wait blocks until both the global and the domain limiter allow an event.
// Returns an error if ctx is done first.
func (l *Limiter) Wait(ctx context.Context, domain string) error {
	if err := l.domain(domain).Wait(ctx); err != nil {
		return err
	}
	return l.global.Wait(ctx)
}

// Allow reports whether an event may happen now, without waiting. A token
// is taken from neither limiter unless both allow the event.
func (l *Limiter) Allow(domain string) bool {
	now := l.now()

	r := l.domain(domain).ReserveN(now, 1)
	if !r.OK() || r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		return false
	}
	if !l.global.AllowN(now, 1) {
		r.CancelAt(now)
		return false
	}
	return true
}

// Domains returns the number of domains currently tracked.
func (l *Limiter) Domains() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.domains)
}

func (l *Limiter) domain(domain string) *rate.Limiter {
	domain = strings.ToLower(domain)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.idle {
		for name, d := range l.domains {
			if now.Sub(d.lastUsed) >= l.idle {
				delete(l.domains, name)
			}
		}
		l.lastSweep = now
	}

	d, ok := l.domains[domain]
	if !ok {
		d = &domainLimiter{lim: rate.NewLimiter(l.perDomain, l.burst)}
		l.domains[domain] = d
	}
	d.lastUsed = now
	return d.lim
}
