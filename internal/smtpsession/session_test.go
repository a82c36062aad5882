package smtpsession_test

import (
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/mxprobe/internal/smtpsession"
)

// pipeSession returns a session whose peer writes raw and then closes.
func pipeSession(t *testing.T, raw string) *smtpsession.Session {
	t.Helper()
	client, server := net.Pipe()
	go func() {
		defer func() { _ = server.Close() }()
		_, _ = fmt.Fprint(server, raw)
	}()
	s := smtpsession.NewSession(client, 2*time.Second)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReadReply_SingleLine(t *testing.T) {
	s := pipeSession(t, "220 mx.example.com ESMTP\r\n")

	r, err := s.ReadReply()
	require.NoError(t, err)
	assert.Equal(t, 220, r.Code)
	assert.Equal(t, []string{"220 mx.example.com ESMTP"}, r.Lines)
	assert.Equal(t, 220, s.LastCode())
}

func TestReadReply_MultiLine(t *testing.T) {
	s := pipeSession(t, "250-Hello\r\n250 OK\r\n")

	r, err := s.ReadReply()
	require.NoError(t, err)
	assert.Equal(t, 250, r.Code)
	assert.Len(t, r.Lines, 2)
	assert.Equal(t, "250-Hello | 250 OK", r.Text())
}

func TestReadReply_CodeFromFinalLine(t *testing.T) {
	s := pipeSession(t, "250-first\r\n250-second\r\n421 going away\r\n")

	r, err := s.ReadReply()
	require.NoError(t, err)
	assert.Equal(t, 421, r.Code)
	assert.Len(t, r.Lines, 3)
}

func TestReadReply_BareCode(t *testing.T) {
	s := pipeSession(t, "250\r\n")

	r, err := s.ReadReply()
	require.NoError(t, err)
	assert.Equal(t, 250, r.Code)
}

func TestReadReply_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"too short", "25\r\n"},
		{"not numeric", "abc hello\r\n"},
		{"eof mid reply", "250-Hello\r\n"},
		{"eof before anything", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := pipeSession(t, tt.raw)
			_, err := s.ReadReply()
			assert.Error(t, err)
		})
	}
}

func TestReadReply_Timeout(t *testing.T) {
	client, server := net.Pipe()
	defer func() { _ = server.Close() }()

	s := smtpsession.NewSession(client, 50*time.Millisecond)
	defer func() { _ = s.Close() }()

	_, err := s.ReadReply()
	require.Error(t, err)

	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

// floodSession returns a session whose peer keeps writing chunk every
// interval until the connection is closed.
func floodSession(t *testing.T, chunk string, interval, readTimeout time.Duration) *smtpsession.Session {
	t.Helper()
	client, server := net.Pipe()
	go func() {
		defer func() { _ = server.Close() }()
		for {
			if _, err := io.WriteString(server, chunk); err != nil {
				return
			}
			if interval > 0 {
				time.Sleep(interval)
			}
		}
	}()
	s := smtpsession.NewSession(client, readTimeout)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReadReply_EndlessContinuation(t *testing.T) {
	s := floodSession(t, "250-x\r\n", 0, 2*time.Second)

	start := time.Now()
	_, err := s.ReadReply()
	assert.ErrorIs(t, err, smtpsession.ErrTooManyLines)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReadReply_LineWithoutEnd(t *testing.T) {
	s := floodSession(t, strings.Repeat("a", 1024), 0, 2*time.Second)

	_, err := s.ReadReply()
	assert.ErrorIs(t, err, smtpsession.ErrLineTooLong)
}

func TestReadReply_DeadlineCoversWholeReply(t *testing.T) {
	// Each line arrives well within the timeout, the reply as a whole does not.
	s := floodSession(t, "250-x\r\n", 30*time.Millisecond, 150*time.Millisecond)

	start := time.Now()
	_, err := s.ReadReply()
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

func TestReadReply_MaxLinesAccepted(t *testing.T) {
	raw := strings.Repeat("250-x\r\n", smtpsession.MaxReplyLines-1) + "250 OK\r\n"
	s := pipeSession(t, raw)

	r, err := s.ReadReply()
	require.NoError(t, err)
	assert.Len(t, r.Lines, smtpsession.MaxReplyLines)
}

func TestReadReply_MaxLengthAccepted(t *testing.T) {
	line := "250 " + strings.Repeat("a", smtpsession.MaxLineLength-6) + "\r\n"
	require.Len(t, line, smtpsession.MaxLineLength)
	s := pipeSession(t, line)

	r, err := s.ReadReply()
	require.NoError(t, err)
	assert.Equal(t, 250, r.Code)
}

func TestCmd_WritesCRLF(t *testing.T) {
	client, server := net.Pipe()
	got := make(chan string, 1)
	go func() {
		defer func() { _ = server.Close() }()
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		got <- string(buf[:n])
		_, _ = fmt.Fprint(server, "250 OK\r\n")
	}()

	s := smtpsession.NewSession(client, 2*time.Second)
	defer func() { _ = s.Close() }()

	r, err := s.Cmd("EHLO %s", "probe.example")
	require.NoError(t, err)
	assert.Equal(t, 250, r.Code)
	assert.Equal(t, "EHLO probe.example\r\n", <-got)
}

func TestClose_Twice(t *testing.T) {
	client, server := net.Pipe()
	defer func() { _ = server.Close() }()

	s := smtpsession.NewSession(client, time.Second)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
