package dnscache_test

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/mxprobe/internal/dnscache"
	"github.com/optimode/mxprobe/internal/resolver"
)

// mockSource tracks how many times each lookup was called.
type mockSource struct {
	mx      []string
	a       []string
	err     error
	mxCalls atomic.Int64
	aCalls  atomic.Int64
}

func (m *mockSource) LookupMX(_ context.Context, _ string) ([]string, error) {
	m.mxCalls.Add(1)
	return m.mx, m.err
}

func (m *mockSource) LookupA(_ context.Context, _ string) ([]string, error) {
	m.aCalls.Add(1)
	return m.a, m.err
}

func TestCache_BasicCaching(t *testing.T) {
	s := &mockSource{mx: []string{"10 mx.example.com."}}
	c := dnscache.New(s, 1*time.Minute)
	ctx := context.Background()

	// First call: actual lookup
	recs, err := c.LookupMX(ctx, "example.com")
	assert.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, int64(1), s.mxCalls.Load())

	// Second call: cached
	recs, err = c.LookupMX(ctx, "example.com")
	assert.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, int64(1), s.mxCalls.Load()) // still 1, no new lookup
}

func TestCache_TypesAreSeparate(t *testing.T) {
	s := &mockSource{mx: []string{"10 mx.test."}, a: []string{"192.0.2.1"}}
	c := dnscache.New(s, 1*time.Minute)
	ctx := context.Background()

	mx, _ := c.LookupMX(ctx, "example.com")
	a, _ := c.LookupA(ctx, "example.com")
	assert.Equal(t, []string{"10 mx.test."}, mx)
	assert.Equal(t, []string{"192.0.2.1"}, a)
	assert.Equal(t, int64(1), s.mxCalls.Load())
	assert.Equal(t, int64(1), s.aCalls.Load())
	assert.Equal(t, 2, c.Len())
}

func TestCache_DifferentDomains(t *testing.T) {
	s := &mockSource{mx: []string{"10 mx.test."}}
	c := dnscache.New(s, 1*time.Minute)

	_, _ = c.LookupMX(context.Background(), "a.com")
	_, _ = c.LookupMX(context.Background(), "b.com")
	assert.Equal(t, int64(2), s.mxCalls.Load())
	assert.Equal(t, 2, c.Len())
}

func TestCache_TTLExpiry(t *testing.T) {
	s := &mockSource{mx: []string{"10 mx.test."}}
	c := dnscache.New(s, 50*time.Millisecond) // short TTL

	_, _ = c.LookupMX(context.Background(), "example.com")
	assert.Equal(t, int64(1), s.mxCalls.Load())

	time.Sleep(100 * time.Millisecond) // wait for expiry

	_, _ = c.LookupMX(context.Background(), "example.com")
	assert.Equal(t, int64(2), s.mxCalls.Load()) // refreshed
}

func TestCache_Singleflight(t *testing.T) {
	s := &mockSource{mx: []string{"10 mx.test."}}
	c := dnscache.New(s, 1*time.Minute)

	// Launch many concurrent lookups for the same domain
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs, err := c.LookupMX(context.Background(), "example.com")
			assert.NoError(t, err)
			assert.Len(t, recs, 1)
		}()
	}
	wg.Wait()

	// Should have only performed 1 actual lookup
	assert.Equal(t, int64(1), s.mxCalls.Load())
}

func TestCache_CachesErrors(t *testing.T) {
	s := &mockSource{err: &net.DNSError{Err: "no such host", IsNotFound: true}}
	c := dnscache.New(s, 1*time.Minute)

	_, err := c.LookupMX(context.Background(), "bad.com")
	assert.Error(t, err)

	_, err = c.LookupMX(context.Background(), "bad.com")
	assert.Error(t, err)
	assert.Equal(t, int64(1), s.mxCalls.Load()) // error was cached
}

func TestCache_DoesNotCacheCancellation(t *testing.T) {
	s := &mockSource{err: context.Canceled}
	c := dnscache.New(s, 1*time.Minute)

	_, _ = c.LookupMX(context.Background(), "example.com")
	_, _ = c.LookupMX(context.Background(), "example.com")
	assert.Equal(t, int64(2), s.mxCalls.Load())
}

// slowFirstSource blocks its first lookup until the caller's context is
// done; later lookups answer immediately.
type slowFirstSource struct {
	calls atomic.Int64
}

func (s *slowFirstSource) LookupMX(ctx context.Context, _ string) ([]string, error) {
	if s.calls.Add(1) == 1 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []string{"10 mx.example.com."}, nil
}

func (s *slowFirstSource) LookupA(context.Context, string) ([]string, error) {
	return nil, nil
}

func TestCache_WaiterRetriesAfterLeaderCancellation(t *testing.T) {
	s := &slowFirstSource{}
	c := dnscache.New(s, 1*time.Minute)

	leaderCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.LookupMX(leaderCtx, "example.com")
		leaderErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	recs, err := c.LookupMX(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"10 mx.example.com."}, recs)
	assert.ErrorIs(t, <-leaderErr, context.DeadlineExceeded)
	assert.Equal(t, int64(2), s.calls.Load())
}

func TestCache_WaiterHonoursOwnContext(t *testing.T) {
	s := &slowFirstSource{}
	c := dnscache.New(s, 1*time.Minute)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	defer cancelLeader()
	go func() { _, _ = c.LookupMX(leaderCtx, "example.com") }()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.LookupMX(ctx, "example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// startStallingDNSServer answers MX queries for example.com, except that
// the first query is held until long after any short client deadline.
func startStallingDNSServer(t *testing.T) (string, *atomic.Int64) {
	t.Helper()

	var queries atomic.Int64
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			if queries.Add(1) == 1 {
				time.Sleep(300 * time.Millisecond)
			}
			m := new(dns.Msg)
			m.SetReply(req)
			rr, err := dns.NewRR("example.com. 300 IN MX 10 mx.example.com.")
			if err == nil {
				m.Answer = append(m.Answer, rr)
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String(), &queries
}

func TestCache_ResolverDeadlineNotCached(t *testing.T) {
	addr, queries := startStallingDNSServer(t)
	r, err := resolver.New(resolver.Config{Nameserver: addr, Timeout: 2 * time.Second})
	require.NoError(t, err)
	c := dnscache.New(r, 5*time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.LookupMX(ctx, "example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	recs, err := c.LookupMX(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"10 mx.example.com."}, recs)
	assert.GreaterOrEqual(t, queries.Load(), int64(2))
}

func TestCache_ReturnsCopy(t *testing.T) {
	s := &mockSource{mx: []string{"20 mx2.", "10 mx1."}}
	c := dnscache.New(s, 1*time.Minute)

	recs1, _ := c.LookupMX(context.Background(), "example.com")
	recs2, _ := c.LookupMX(context.Background(), "example.com")

	// Mutating one copy should not affect the other
	recs1[0] = "modified."
	assert.NotEqual(t, recs1[0], recs2[0])
}
