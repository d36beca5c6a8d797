package socks5

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"time"

	"github.com/33TU/socksd/internal"
)

// DefaultHandshakeTimeout bounds every frame read and write of a handshake
// when Config.HandshakeTimeout is zero.
const DefaultHandshakeTimeout = 30 * time.Second

var errSessionUsed = errors.New("socks5: session already run")

// Binding is the result of a successful CommandExecutor.Prepare.
type Binding struct {
	Addr Addr   // BND.ADDR; the zero value is sent as 0.0.0.0
	Port uint16 // BND.PORT

	// Conn is the executor's upstream connection, if any. It is handed to
	// the relay untouched and closed if the reply cannot be written.
	Conn net.Conn
}

// CommandExecutor carries out a validated request. A returned
// *ExecutionError selects the reply code; any other error is answered with
// RepGeneralFailure.
type CommandExecutor interface {
	Prepare(ctx context.Context, req *Request) (Binding, error)
}

// CommandExecutorFunc adapts a function to CommandExecutor.
type CommandExecutorFunc func(ctx context.Context, req *Request) (Binding, error)

// Prepare calls f.
func (f CommandExecutorFunc) Prepare(ctx context.Context, req *Request) (Binding, error) {
	return f(ctx, req)
}

// Config is the immutable server configuration shared by all sessions.
type Config struct {
	// Methods lists the accepted authentication methods, most preferred
	// first. Default: [UserPass] with an Authenticator, [NoAuth] without.
	Methods []Method

	// Commands lists the accepted commands. Default: [CONNECT].
	Commands []Command

	Authenticator Authenticator
	Executor      CommandExecutor

	// HandshakeTimeout bounds each frame read and write (0=DefaultHandshakeTimeout).
	HandshakeTimeout time.Duration
}

func (c *Config) methods() []Method {
	if len(c.Methods) > 0 {
		return c.Methods
	}
	if c.Authenticator != nil {
		return []Method{MethodUserPass}
	}
	return []Method{MethodNoAuth}
}

func (c *Config) commands() []Command {
	if len(c.Commands) > 0 {
		return c.Commands
	}
	return []Command{CmdConnect}
}

func (c *Config) timeout() time.Duration {
	if c.HandshakeTimeout > 0 {
		return c.HandshakeTimeout
	}
	return DefaultHandshakeTimeout
}

// State is a handshake state.
type State uint8

// Handshake states.
const (
	StateAwaitingGreeting State = iota
	StateAuthenticating
	StateAwaitingRequest
	StateEstablished
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingGreeting:
		return "AwaitingGreeting"
	case StateAuthenticating:
		return "Authenticating"
	case StateAwaitingRequest:
		return "AwaitingRequest"
	case StateEstablished:
		return "Established"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Established describes a completed handshake. The relay takes ownership of
// Conn and Binding.Conn.
type Established struct {
	Conn     net.Conn // client connection; bytes read ahead are replayed
	Method   Method
	Username string // empty unless Method is MethodUserPass
	Request  Request
	Binding  Binding
}

// Session drives one client connection through the SOCKS5 handshake.
type Session struct {
	conn  net.Conn
	cfg   *Config
	state State

	br *internal.HandshakeReader

	method   Method
	username string
	req      Request
	binding  Binding
}

// NewSession creates a session for conn. cfg must not be modified while the
// session runs.
func NewSession(conn net.Conn, cfg *Config) *Session {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Session{
		conn:  conn,
		cfg:   cfg,
		state: StateAwaitingGreeting,
	}
}

// State returns the current handshake state.
func (s *Session) State() State {
	return s.state
}

// Run performs the handshake. On success the session is Established and the
// connection is handed over in the result. On failure the connection is
// closed and the error matches one of the package's error kinds.
// Cancelling ctx closes the connection, which unblocks any pending I/O.
func (s *Session) Run(ctx context.Context) (*Established, error) {
	if s.state != StateAwaitingGreeting {
		return nil, errSessionUsed
	}

	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	s.br = internal.GetHandshakeReader(s.conn, MaxHandshakeSize)
	defer func() {
		s.br.Release()
		s.br = nil
	}()

	var err error
	for err == nil && s.state != StateEstablished {
		switch s.state {
		case StateAwaitingGreeting:
			err = s.greet(ctx)
		case StateAuthenticating:
			err = s.authenticate(ctx)
		case StateAwaitingRequest:
			err = s.request(ctx)
		}
	}

	if err == nil && !stop() {
		err = fmt.Errorf("%w: %w", ErrTruncatedFrame, net.ErrClosed)
		if s.binding.Conn != nil {
			s.binding.Conn.Close()
		}
	}
	if err != nil {
		s.state = StateClosed
		s.conn.Close()
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%w)", err, context.Cause(ctx))
		}
		return nil, err
	}

	_ = s.conn.SetDeadline(time.Time{})
	return &Established{
		Conn:     s.handoff(),
		Method:   s.method,
		Username: s.username,
		Request:  s.req,
		Binding:  s.binding,
	}, nil
}

// greet handles AwaitingGreeting.
func (s *Session) greet(_ context.Context) error {
	var req HandshakeRequest
	if err := s.readFrame(&req); err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}

	method, ok := SelectMethod(s.cfg.methods(), req.Methods)

	var rep HandshakeReply
	rep.Init(SocksVersion, method)
	werr := s.writeFrame(&rep)

	if !ok {
		return errors.Join(fmt.Errorf("%w: offered %v", ErrNoAcceptableMethod, req.Methods), werr)
	}
	if werr != nil {
		return fmt.Errorf("write method selection: %w", werr)
	}

	s.method = method
	if method == MethodUserPass {
		s.state = StateAuthenticating
	} else {
		s.state = StateAwaitingRequest
	}
	return nil
}

// authenticate handles Authenticating (RFC 1929).
func (s *Session) authenticate(ctx context.Context) error {
	var req UserPassRequest
	if err := s.readFrame(&req); err != nil {
		return fmt.Errorf("read auth request: %w", err)
	}

	ok := s.cfg.Authenticator != nil && s.cfg.Authenticator.Verify(ctx, req.Username, req.Password)

	status := byte(AuthStatusSuccess)
	if !ok {
		status = AuthStatusFailure
	}

	var rep UserPassReply
	rep.Init(AuthVersionUserPass, status)
	werr := s.writeFrame(&rep)

	if !ok {
		return errors.Join(fmt.Errorf("%w: user %q", ErrAuthenticationFailed, req.Username), werr)
	}
	if werr != nil {
		return fmt.Errorf("write auth reply: %w", werr)
	}

	s.username = req.Username
	s.state = StateAwaitingRequest
	return nil
}

// request handles AwaitingRequest.
func (s *Session) request(ctx context.Context) error {
	err := s.readFrame(&s.req)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnsupportedCommand):
		return s.reject(RepCommandNotSupported, err)
	case errors.Is(err, ErrUnsupportedAddrType):
		return s.reject(RepAddrTypeNotSupported, err)
	default:
		return fmt.Errorf("read request: %w", err)
	}

	if !slices.Contains(s.cfg.commands(), s.req.Command) {
		return s.reject(RepCommandNotSupported, fmt.Errorf("%w: %s is disabled", ErrUnsupportedCommand, s.req.Command))
	}
	if s.cfg.Executor == nil {
		return s.reject(RepGeneralFailure, NewExecutionError(RepGeneralFailure, errors.New("no command executor")))
	}

	b, err := s.cfg.Executor.Prepare(ctx, &s.req)
	if err != nil {
		code := replyCodeFor(err)
		var ee *ExecutionError
		if !errors.As(err, &ee) || ee.Code != code {
			err = NewExecutionError(code, err)
		}
		return s.reject(code, err)
	}

	if b.Addr.Type == 0 {
		b.Addr = ZeroAddr
	}

	var rep Reply
	rep.Init(SocksVersion, RepSuccess, 0x00, b.Addr, b.Port)
	if err := s.writeFrame(&rep); err != nil {
		if b.Conn != nil {
			b.Conn.Close()
		}
		return fmt.Errorf("write reply: %w", err)
	}

	s.binding = b
	s.state = StateEstablished
	return nil
}

// reject answers the request with a failure reply bound to 0.0.0.0:0.
func (s *Session) reject(code ReplyCode, cause error) error {
	var rep Reply
	rep.Init(SocksVersion, code, 0x00, ZeroAddr, 0)
	return errors.Join(cause, s.writeFrame(&rep))
}

func (s *Session) readFrame(rf io.ReaderFrom) error {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.timeout()))
	_, err := rf.ReadFrom(s.br)
	return err
}

func (s *Session) writeFrame(wt io.WriterTo) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.timeout()))
	if _, err := wt.WriteTo(s.conn); err != nil {
		return fmt.Errorf("%w: %w", ErrTruncatedFrame, err)
	}
	return nil
}

// handoff returns the client connection for the relay, replaying any bytes
// the reader buffered past the final request.
func (s *Session) handoff() net.Conn {
	n := s.br.Buffered()
	if n == 0 {
		return s.conn
	}
	p := make([]byte, n)
	_, _ = io.ReadFull(s.br, p)
	return &bufferedConn{
		Conn: s.conn,
		r:    io.MultiReader(bytes.NewReader(p), s.conn),
	}
}

type bufferedConn struct {
	net.Conn
	r io.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// CloseWrite half-closes the underlying connection when it supports it.
func (c *bufferedConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.Conn.Close()
}
