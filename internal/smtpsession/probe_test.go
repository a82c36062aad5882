package smtpsession_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/mxprobe/internal/smtpsession"
	"github.com/optimode/mxprobe/internal/smtptest"
)

func testConfig(dial smtpsession.DialFunc) smtpsession.Config {
	return smtpsession.Config{
		HeloDomain:     "probe.test",
		MailFrom:       "verify@probe.test",
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    2 * time.Second,
		Port:           "25",
		Dial:           dial,
	}
}

func runProbe(t *testing.T, script smtptest.Script) (smtpsession.Reply, *smtptest.Dialer, error) {
	t.Helper()
	d := &smtptest.Dialer{Script: script}
	r, err := smtpsession.Probe(context.Background(), testConfig(d.Dial), "mx.example.com", "user@example.com")
	for _, srv := range d.Servers() {
		srv.Wait()
	}
	return r, d, err
}

func TestProbe_Accepted(t *testing.T) {
	r, d, err := runProbe(t, smtptest.Accepting())

	require.NoError(t, err)
	assert.Equal(t, 250, r.Code)
	assert.Equal(t, []string{"mx.example.com:25"}, d.Dialed())
	assert.Equal(t, []string{
		"EHLO probe.test",
		"MAIL FROM: <verify@probe.test>",
		"RCPT TO: <user@example.com>",
		"QUIT",
	}, d.Servers()[0].Commands())
	assert.True(t, d.AllClosed())
}

func TestProbe_RecipientRejectedStillQuits(t *testing.T) {
	r, d, err := runProbe(t, smtptest.Accepting().With("RCPT TO", "550 no such user"))

	var re *smtpsession.ReplyError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, smtpsession.StepRcptTo, re.Step)
	assert.Equal(t, 550, re.Code)
	assert.Equal(t, 550, r.Code)

	cmds := d.Servers()[0].Commands()
	require.Len(t, cmds, 4)
	assert.Equal(t, "QUIT", cmds[3])
	assert.True(t, d.AllClosed())
}

func TestProbe_StepRejections(t *testing.T) {
	tests := []struct {
		name   string
		script smtptest.Script
		step   smtpsession.Step
		code   int
	}{
		{
			name:   "greeting not 220",
			script: smtptest.Script{Banner: "554 go away", Replies: smtptest.Accepting().Replies},
			step:   smtpsession.StepGreeting,
			code:   554,
		},
		{
			name:   "EHLO not 250",
			script: smtptest.Accepting().With("EHLO", "502 command not implemented"),
			step:   smtpsession.StepEHLO,
			code:   502,
		},
		{
			name:   "MAIL FROM not 250",
			script: smtptest.Accepting().With("MAIL FROM", "553 sender rejected"),
			step:   smtpsession.StepMailFrom,
			code:   553,
		},
		{
			name:   "RCPT TO temporary failure",
			script: smtptest.Accepting().With("RCPT TO", "451 try again later"),
			step:   smtpsession.StepRcptTo,
			code:   451,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, d, err := runProbe(t, tt.script)

			var re *smtpsession.ReplyError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.step, re.Step)
			assert.Equal(t, tt.code, re.Code)
			assert.True(t, d.AllClosed())
		})
	}
}

func TestProbe_MultiLineEHLO(t *testing.T) {
	script := smtptest.Accepting().With("EHLO", "250-mx Hello\r\n250-SIZE 1000\r\n250 8BITMIME")
	r, _, err := runProbe(t, script)
	require.NoError(t, err)
	assert.Equal(t, 250, r.Code)
}

func TestProbe_ConnectError(t *testing.T) {
	d := &smtptest.Dialer{Refuse: map[string]bool{"mx.example.com:25": true}}
	_, err := smtpsession.Probe(context.Background(), testConfig(d.Dial), "mx.example.com", "user@example.com")

	var ce *smtpsession.ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "mx.example.com:25", ce.Addr)
	assert.ErrorIs(t, err, smtptest.ErrRefused)
}

func TestProbe_ServerHangsUp(t *testing.T) {
	// Server answers EHLO, then drops the connection on MAIL FROM.
	client, server := net.Pipe()
	go func() {
		defer func() { _ = server.Close() }()
		_, _ = io.WriteString(server, "220 ready\r\n")
		buf := make([]byte, 256)
		_, _ = server.Read(buf)
		_, _ = io.WriteString(server, "250 OK\r\n")
		_, _ = server.Read(buf)
	}()
	dial := func(context.Context, string, string) (net.Conn, error) { return client, nil }

	_, err := smtpsession.Probe(context.Background(), testConfig(dial), "mx.example.com", "user@example.com")

	var te *smtpsession.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, smtpsession.StepMailFrom, te.Step)
}

func TestProbe_FloodingServer(t *testing.T) {
	client, server := net.Pipe()
	go func() {
		defer func() { _ = server.Close() }()
		for {
			if _, err := io.WriteString(server, "220-still here\r\n"); err != nil {
				return
			}
		}
	}()
	dial := func(context.Context, string, string) (net.Conn, error) { return client, nil }

	_, err := smtpsession.Probe(context.Background(), testConfig(dial), "mx.example.com", "user@example.com")

	var te *smtpsession.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, smtpsession.StepGreeting, te.Step)
	assert.ErrorIs(t, err, smtpsession.ErrTooManyLines)
}

func TestProbe_SilentServerTimesOutAndCloses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	// The server accepts and never writes; it reports when the client hangs up.
	peerClosed := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			peerClosed <- err
			return
		}
		defer func() { _ = conn.Close() }()
		_, err = conn.Read(make([]byte, 1))
		peerClosed <- err
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	cfg := testConfig(nil)
	cfg.Port = port
	cfg.ReadTimeout = 100 * time.Millisecond

	start := time.Now()
	_, err = smtpsession.Probe(context.Background(), cfg, host, "user@example.com")
	assert.Less(t, time.Since(start), 2*time.Second)

	var te *smtpsession.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, smtpsession.StepGreeting, te.Step)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())

	select {
	case err := <-peerClosed:
		assert.True(t, errors.Is(err, io.EOF), "expected EOF after client close, got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("client connection was not closed")
	}
}

func TestNewDialer(t *testing.T) {
	direct, err := smtpsession.NewDialer("", "", "")
	require.NoError(t, err)
	assert.NotNil(t, direct)

	viaProxy, err := smtpsession.NewDialer("127.0.0.1:1", "user", "secret")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = viaProxy(ctx, "tcp", "mx.example.com:25")
	assert.Error(t, err) // nothing listens on the proxy port
}
