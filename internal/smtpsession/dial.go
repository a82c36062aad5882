package smtpsession

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/net/proxy"
)

// NewDialer returns the dial hook for probes. With an empty socks5Addr it
// dials directly; otherwise every connection goes through the SOCKS5 proxy,
// with username/password authentication when a username is given.
func NewDialer(socks5Addr, username, password string) (DialFunc, error) {
	if socks5Addr == "" {
		d := &net.Dialer{}
		return d.DialContext, nil
	}

	var auth *proxy.Auth
	if username != "" {
		auth = &proxy.Auth{User: username, Password: password}
	}

	d, err := proxy.SOCKS5("tcp", socks5Addr, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("create SOCKS5 dialer for %s: %w", socks5Addr, err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("SOCKS5 dialer does not support contexts")
	}
	return cd.DialContext, nil
}
