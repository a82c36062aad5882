// Package smtpsession implements the client side of a single SMTP probe:
// connection setup, CRLF line framing, multi-line reply parsing and the
// greeting/EHLO/MAIL FROM/RCPT TO/QUIT sequence.
package smtpsession

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// DialFunc opens the TCP connection to a mail host. The context carries the
// connect timeout.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config configures a probe.
type Config struct {
	HeloDomain     string
	MailFrom       string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration // applied to every read and write
	Port           string
	// Dial is injectable for testing. Defaults to a plain net.Dialer.
	Dial DialFunc
}

// Reply is one complete, possibly multi-line, SMTP reply.
type Reply struct {
	Code  int
	Lines []string
}

// Text joins the reply lines.
func (r Reply) Text() string {
	return strings.Join(r.Lines, " | ")
}

// Session is one SMTP connection together with its read/write framing.
type Session struct {
	conn        net.Conn
	reader      *bufio.Reader
	writer      *bufio.Writer
	readTimeout time.Duration
	lastCode    int
}

// Dial connects to host on cfg.Port.
func Dial(ctx context.Context, cfg Config, host string) (*Session, error) {
	dial := cfg.Dial
	if dial == nil {
		d := &net.Dialer{}
		dial = d.DialContext
	}

	address := net.JoinHostPort(host, cfg.Port)
	dctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	conn, err := dial(dctx, "tcp", address)
	if err != nil {
		return nil, &ConnectError{Addr: address, Err: err}
	}
	return NewSession(conn, cfg.ReadTimeout), nil
}

// NewSession wraps an established connection.
func NewSession(conn net.Conn, readTimeout time.Duration) *Session {
	return &Session{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		writer:      bufio.NewWriter(conn),
		readTimeout: readTimeout,
	}
}

// LastCode returns the code of the most recent reply, or 0.
func (s *Session) LastCode() int {
	return s.lastCode
}

// Limits on a single reply. A reply line is at most 512 octets including
// CRLF.
const (
	MaxReplyLines = 100
	MaxLineLength = 512
)

// ReadReply reads one reply, draining continuation lines (a '-' as the
// fourth character) until the final line. The code is taken from the final
// line. The whole reply must arrive within the read timeout.
func (s *Session) ReadReply() (Reply, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		return Reply{}, fmt.Errorf("set read deadline: %w", err)
	}

	var lines []string
	for {
		if len(lines) == MaxReplyLines {
			return Reply{}, fmt.Errorf("read SMTP reply: %w", ErrTooManyLines)
		}
		line, err := s.readLine()
		if err != nil {
			return Reply{}, fmt.Errorf("read SMTP reply: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			return Reply{}, fmt.Errorf("SMTP reply line too short: %q", line)
		}
		lines = append(lines, line)
		// If the 4th character is not '-', this is the last line
		if len(line) < 4 || line[3] != '-' {
			break
		}
	}

	last := lines[len(lines)-1]
	code, err := strconv.Atoi(last[:3])
	if err != nil || code < 100 || code > 999 {
		return Reply{}, fmt.Errorf("invalid SMTP reply code %q", last[:3])
	}
	s.lastCode = code
	return Reply{Code: code, Lines: lines}, nil
}

// readLine reads up to and including '\n', failing once the line exceeds
// MaxLineLength.
func (s *Session) readLine() (string, error) {
	var buf []byte
	for {
		frag, err := s.reader.ReadSlice('\n')
		buf = append(buf, frag...)
		if len(buf) > MaxLineLength {
			return "", ErrLineTooLong
		}
		if err == nil {
			return string(buf), nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return "", err
		}
	}
}

// Cmd sends one command line followed by CRLF and reads the reply.
func (s *Session) Cmd(format string, args ...any) (Reply, error) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.readTimeout)); err != nil {
		return Reply{}, fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := fmt.Fprintf(s.writer, format+"\r\n", args...); err != nil {
		return Reply{}, fmt.Errorf("write SMTP command: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return Reply{}, fmt.Errorf("write SMTP command: %w", err)
	}
	return s.ReadReply()
}

// Quit sends QUIT and discards the reply. Errors are ignored.
func (s *Session) Quit() {
	_, _ = s.Cmd("QUIT")
}

// Close releases the connection. The buffered framing is dropped with it.
func (s *Session) Close() error {
	err := s.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
