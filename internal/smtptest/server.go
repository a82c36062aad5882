// Package smtptest provides a scripted fake SMTP server over net.Pipe for
// exercising the probe without a network.
package smtptest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
)

// Script describes how the fake server answers.
type Script struct {
	// Banner is sent on connect. Empty means the server stays silent.
	Banner string
	// Replies maps a command prefix to its reply. A reply may span several
	// lines separated by "\r\n". The longest matching prefix wins; commands
	// with no match get "500 unrecognized command".
	Replies map[string]string
	// QuitReply answers QUIT. Default: "221 Bye"
	QuitReply string
}

// Accepting answers every step of a probe with success.
func Accepting() Script {
	return Script{
		Banner: "220 mock.smtp ESMTP ready",
		Replies: map[string]string{
			"EHLO":      "250-mock.smtp Hello\r\n250 PIPELINING",
			"MAIL FROM": "250 OK",
			"RCPT TO":   "250 OK",
		},
	}
}

// With returns a copy of s whose reply for prefix is replaced.
func (s Script) With(prefix, reply string) Script {
	replies := make(map[string]string, len(s.Replies)+1)
	for k, v := range s.Replies {
		replies[k] = v
	}
	replies[prefix] = reply
	s.Replies = replies
	return s
}

// Server is one scripted SMTP conversation.
type Server struct {
	script   Script
	mu       sync.Mutex
	commands []string
	done     chan struct{}
}

// Serve runs script on conn in a new goroutine. The server returns after
// answering QUIT or when the peer closes the connection.
func Serve(conn net.Conn, script Script) *Server {
	s := &Server{script: script, done: make(chan struct{})}
	go s.run(conn)
	return s
}

func (s *Server) run(conn net.Conn) {
	defer close(s.done)
	defer func() { _ = conn.Close() }()

	if s.script.Banner != "" {
		if _, err := fmt.Fprintf(conn, "%s\r\n", s.script.Banner); err != nil {
			return
		}
	}

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		s.mu.Unlock()

		if strings.HasPrefix(cmd, "QUIT") {
			reply := s.script.QuitReply
			if reply == "" {
				reply = "221 Bye"
			}
			_, _ = fmt.Fprintf(conn, "%s\r\n", reply)
			return
		}
		if _, err := fmt.Fprintf(conn, "%s\r\n", s.reply(cmd)); err != nil {
			return
		}
	}
}

func (s *Server) reply(cmd string) string {
	best, reply := -1, "500 unrecognized command"
	for prefix, r := range s.script.Replies {
		if strings.HasPrefix(cmd, prefix) && len(prefix) > best {
			best, reply = len(prefix), r
		}
	}
	return reply
}

// Wait blocks until the conversation has ended.
func (s *Server) Wait() {
	<-s.done
}

// Commands returns the command lines received so far, without CRLF.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// TrackedConn records whether the client side was closed.
type TrackedConn struct {
	net.Conn
	closed atomic.Bool
}

func (c *TrackedConn) Close() error {
	c.closed.Store(true)
	return c.Conn.Close()
}

// Closed reports whether Close was called.
func (c *TrackedConn) Closed() bool {
	return c.closed.Load()
}

// ErrRefused is returned by Dialer for addresses listed in Refuse.
var ErrRefused = errors.New("connection refused")

// Dialer hands out net.Pipe connections backed by scripted servers.
// Its Dial method has the signature expected by the probe's dial hook.
type Dialer struct {
	// Script is used for addresses without an entry in ByAddress.
	Script Script
	// ByAddress overrides Script per "host:port".
	ByAddress map[string]Script
	// Refuse makes dialing the listed "host:port" addresses fail.
	Refuse map[string]bool

	mu      sync.Mutex
	dialed  []string
	servers []*Server
	conns   []*TrackedConn
}

// Dial implements the probe dial hook.
func (d *Dialer) Dial(_ context.Context, _, address string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dialed = append(d.dialed, address)
	if d.Refuse[address] {
		return nil, ErrRefused
	}

	script, ok := d.ByAddress[address]
	if !ok {
		script = d.Script
	}
	client, server := net.Pipe()
	d.servers = append(d.servers, Serve(server, script))
	tc := &TrackedConn{Conn: client}
	d.conns = append(d.conns, tc)
	return tc, nil
}

// Dialed returns every address passed to Dial, in order.
func (d *Dialer) Dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dialed...)
}

// Servers returns the servers started so far, in dial order.
func (d *Dialer) Servers() []*Server {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Server(nil), d.servers...)
}

// AllClosed reports whether every handed-out connection was closed.
func (d *Dialer) AllClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.conns {
		if !c.Closed() {
			return false
		}
	}
	return true
}
