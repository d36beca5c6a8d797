package socks5

import (
	"context"
	"fmt"
	"net"
)

var (
	// DefaultDialer is the default internal net.Dialer.
	DefaultDialer = &net.Dialer{}
)

// Dialer implements a SOCKS5 CONNECT client.
type Dialer struct {
	ProxyAddr    string      // e.g. "127.0.0.1:1080"
	ProxyNetwork string      // e.g. "tcp" (""=tcp)
	Username     string      // optional RFC 1929 username
	Password     string      // optional RFC 1929 password
	BaseDialer   *net.Dialer // optional underlying dialer (nil=DefaultDialer)
}

// NewDialer creates a new SOCKS5 dialer instance.
func NewDialer(proxyAddr, proxyNetwork, username, password string, base *net.Dialer) *Dialer {
	return &Dialer{
		ProxyAddr:    proxyAddr,
		ProxyNetwork: proxyNetwork,
		Username:     username,
		Password:     password,
		BaseDialer:   base,
	}
}

// DialContext connects to addr through the proxy. A refused request is
// returned as *ExecutionError carrying the server's reply code.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return nil, fmt.Errorf("socks5: network %q not supported", network)
	}

	base := d.BaseDialer
	if base == nil {
		base = DefaultDialer
	}
	proxyNetwork := d.ProxyNetwork
	if proxyNetwork == "" {
		proxyNetwork = "tcp"
	}

	// Connect to proxy
	proxyConn, err := base.DialContext(ctx, proxyNetwork, d.ProxyAddr)
	if err != nil {
		return nil, fmt.Errorf("connect to proxy: %w", err)
	}

	// Close proxy connection on context cancellation
	stop := context.AfterFunc(ctx, func() { proxyConn.Close() })

	err = d.handshake(proxyConn, addr)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		proxyConn.Close()
		return nil, err
	}

	// Connection established
	return proxyConn, nil
}

// Dial connects to addr through the proxy using a background context.
func (d *Dialer) Dial(network, addr string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, addr)
}

func (d *Dialer) handshake(conn net.Conn, addr string) error {
	// Parse target host/port
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid target address: %w", err)
	}
	port, err := parsePort(portStr)
	if err != nil {
		return fmt.Errorf("invalid target port %q: %w", portStr, err)
	}
	dst := ParseAddr(host)
	if err := dst.Validate(); err != nil {
		return fmt.Errorf("invalid target host: %w", err)
	}

	// Method negotiation
	methods := []Method{MethodNoAuth}
	if d.Username != "" {
		methods = []Method{MethodUserPass, MethodNoAuth}
	}

	var greet HandshakeRequest
	greet.Init(SocksVersion, methods...)
	if _, err := greet.WriteTo(conn); err != nil {
		return fmt.Errorf("send greeting: %w", err)
	}

	var sel HandshakeReply
	if _, err := sel.ReadFrom(conn); err != nil {
		return fmt.Errorf("read method selection: %w", err)
	}

	switch sel.Method {
	case MethodNoAuth:
	case MethodUserPass:
		if d.Username == "" {
			return fmt.Errorf("%w: proxy selected %s without credentials", ErrNoAcceptableMethod, sel.Method)
		}
		if err := d.authenticate(conn); err != nil {
			return err
		}
	case MethodNoAcceptable:
		return ErrNoAcceptableMethod
	default:
		return fmt.Errorf("%w: proxy selected unoffered %s", ErrNoAcceptableMethod, sel.Method)
	}

	// Send request
	var req Request
	req.Init(SocksVersion, CmdConnect, 0x00, dst, port)
	if _, err := req.WriteTo(conn); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	// Read reply
	var rep Reply
	if _, err := rep.ReadFrom(conn); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if !rep.Succeeded() {
		return NewExecutionError(rep.Reply, fmt.Errorf("proxy rejected CONNECT %s", addr))
	}
	return nil
}

func (d *Dialer) authenticate(conn net.Conn) error {
	var req UserPassRequest
	req.Init(AuthVersionUserPass, d.Username, d.Password)
	if _, err := req.WriteTo(conn); err != nil {
		return fmt.Errorf("send credentials: %w", err)
	}

	var rep UserPassReply
	if _, err := rep.ReadFrom(conn); err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	if !rep.Success() {
		return fmt.Errorf("%w: status %#02x", ErrAuthenticationFailed, rep.Status)
	}
	return nil
}

// parsePort converts a port string to uint16.
func parsePort(p string) (uint16, error) {
	n, err := net.LookupPort("tcp", p)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}
