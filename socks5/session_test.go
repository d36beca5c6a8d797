package socks5_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/33TU/socksd/socks5"
)

type sessionResult struct {
	est   *socks5.Established
	err   error
	state socks5.State
}

// startSession runs a server session on one end of a pipe and returns the
// client end.
func startSession(ctx context.Context, cfg *socks5.Config) (net.Conn, <-chan sessionResult) {
	client, server := net.Pipe()
	ch := make(chan sessionResult, 1)
	go func() {
		s := socks5.NewSession(server, cfg)
		est, err := s.Run(ctx)
		ch <- sessionResult{est: est, err: err, state: s.State()}
	}()
	return client, ch
}

// exchange writes req and expects exactly want in response.
func exchange(t *testing.T, conn net.Conn, req, want []byte) {
	t.Helper()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write(req); err != nil {
		t.Fatalf("write % x: %v", req, err)
	}
	got := make([]byte, len(want))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("read reply to % x: %v", req, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("reply to % x: got % x, want % x", req, got, want)
	}
}

func waitResult(t *testing.T, ch <-chan sessionResult) sessionResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
		return sessionResult{}
	}
}

// expectClosed asserts the server closed its end without sending anything.
func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var b [1]byte
	if n, err := conn.Read(b[:]); n != 0 || err == nil {
		t.Fatalf("expected closed connection, got n=%d err=%v", n, err)
	}
}

func staticExecutor(b socks5.Binding, err error) socks5.CommandExecutor {
	return socks5.CommandExecutorFunc(func(ctx context.Context, req *socks5.Request) (socks5.Binding, error) {
		return b, err
	})
}

// zeroReply is a reply with code bound to 0.0.0.0:0.
func zeroReply(code byte) []byte {
	return []byte{0x05, code, 0x00, 0x01, 0, 0, 0, 0, 0, 0}
}

func Test_Session_Greeting_NoAuth(t *testing.T) {
	conn, ch := startSession(context.Background(), &socks5.Config{Executor: staticExecutor(socks5.Binding{}, nil)})
	defer conn.Close()

	exchange(t, conn, []byte{0x05, 0x01, 0x00}, []byte{0x05, 0x00})
	conn.Close()

	r := waitResult(t, ch)
	if !errors.Is(r.err, socks5.ErrTruncatedFrame) {
		t.Errorf("expected ErrTruncatedFrame after client hangup, got %v", r.err)
	}
}

func Test_Session_Connect_Established(t *testing.T) {
	var seen string
	cfg := &socks5.Config{
		Executor: socks5.CommandExecutorFunc(func(ctx context.Context, req *socks5.Request) (socks5.Binding, error) {
			seen = req.Address()
			return socks5.Binding{}, nil
		}),
	}
	conn, ch := startSession(context.Background(), cfg)
	defer conn.Close()

	exchange(t, conn, []byte{0x05, 0x01, 0x00}, []byte{0x05, 0x00})
	exchange(t, conn,
		[]byte{0x05, 0x01, 0x00, 0x01, 0x7F, 0x00, 0x00, 0x01, 0x1F, 0x90},
		zeroReply(0x00),
	)

	r := waitResult(t, ch)
	if r.err != nil {
		t.Fatalf("Run failed: %v", r.err)
	}
	if r.state != socks5.StateEstablished {
		t.Errorf("state = %s, want Established", r.state)
	}
	if seen != "127.0.0.1:8080" {
		t.Errorf("executor saw %q", seen)
	}
	if r.est.Method != socks5.MethodNoAuth || r.est.Request.Command != socks5.CmdConnect {
		t.Errorf("unexpected established info: %+v", r.est)
	}
	r.est.Conn.Close()
}

func Test_Session_Connect_BoundAddress(t *testing.T) {
	b := socks5.Binding{Addr: socks5.AddrFromIP(netip.MustParseAddr("10.0.0.1")), Port: 1234}
	conn, ch := startSession(context.Background(), &socks5.Config{Executor: staticExecutor(b, nil)})
	defer conn.Close()

	exchange(t, conn, []byte{0x05, 0x01, 0x00}, []byte{0x05, 0x00})
	exchange(t, conn,
		[]byte{0x05, 0x01, 0x00, 0x03, 0x04, 't', 'e', 's', 't', 0x01, 0xBB},
		[]byte{0x05, 0x00, 0x00, 0x01, 10, 0, 0, 1, 0x04, 0xD2},
	)

	if r := waitResult(t, ch); r.err != nil {
		t.Fatalf("Run failed: %v", r.err)
	}
}

func Test_Session_Connect_HostUnreachable(t *testing.T) {
	cause := errors.New("no route to test")
	cfg := &socks5.Config{
		Executor: staticExecutor(socks5.Binding{}, socks5.NewExecutionError(socks5.RepHostUnreachable, cause)),
	}
	conn, ch := startSession(context.Background(), cfg)
	defer conn.Close()

	exchange(t, conn, []byte{0x05, 0x01, 0x00}, []byte{0x05, 0x00})
	exchange(t, conn,
		[]byte{0x05, 0x01, 0x00, 0x03, 0x04, 't', 'e', 's', 't', 0x01, 0xBB},
		zeroReply(0x04),
	)
	expectClosed(t, conn)

	r := waitResult(t, ch)
	if r.state != socks5.StateClosed {
		t.Errorf("state = %s, want Closed", r.state)
	}
	if !errors.Is(r.err, socks5.ErrExecutionFailed) || !errors.Is(r.err, cause) {
		t.Errorf("expected execution failure wrapping cause, got %v", r.err)
	}
	var ee *socks5.ExecutionError
	if !errors.As(r.err, &ee) || ee.Code != socks5.RepHostUnreachable {
		t.Errorf("expected HostUnreachable ExecutionError, got %v", r.err)
	}
}

func Test_Session_Connect_ExecutorErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code byte
	}{
		{"plain error", errors.New("boom"), 0x01},
		{"success code is not trusted", socks5.NewExecutionError(socks5.RepSuccess, nil), 0x01},
		{"invalid code", socks5.NewExecutionError(0x42, nil), 0x01},
		{"connection refused", socks5.NewExecutionError(socks5.RepConnectionRefused, nil), 0x05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, ch := startSession(context.Background(), &socks5.Config{Executor: staticExecutor(socks5.Binding{}, tt.err)})
			defer conn.Close()

			exchange(t, conn, []byte{0x05, 0x01, 0x00}, []byte{0x05, 0x00})
			exchange(t, conn, []byte{0x05, 0x01, 0x00, 0x01, 1, 2, 3, 4, 0, 80}, zeroReply(tt.code))

			r := waitResult(t, ch)
			if !errors.Is(r.err, socks5.ErrExecutionFailed) {
				t.Errorf("expected ErrExecutionFailed, got %v", r.err)
			}
		})
	}
}

func Test_Session_NoAcceptableMethod(t *testing.T) {
	conn, ch := startSession(context.Background(), &socks5.Config{})
	defer conn.Close()

	exchange(t, conn, []byte{0x05, 0x01, 0x01}, []byte{0x05, 0xFF})
	expectClosed(t, conn)

	r := waitResult(t, ch)
	if !errors.Is(r.err, socks5.ErrNoAcceptableMethod) {
		t.Errorf("expected ErrNoAcceptableMethod, got %v", r.err)
	}
	if r.state != socks5.StateClosed {
		t.Errorf("state = %s, want Closed", r.state)
	}
}

func Test_Session_UserPass_Success(t *testing.T) {
	cfg := &socks5.Config{
		Authenticator: socks5.StaticCredentials{"alice": "secret"},
		Executor:      staticExecutor(socks5.Binding{}, nil),
	}
	conn, ch := startSession(context.Background(), cfg)
	defer conn.Close()

	exchange(t, conn, []byte{0x05, 0x02, 0x00, 0x02}, []byte{0x05, 0x02})
	exchange(t, conn,
		[]byte{0x01, 0x05, 'a', 'l', 'i', 'c', 'e', 0x06, 's', 'e', 'c', 'r', 'e', 't'},
		[]byte{0x01, 0x00},
	)
	exchange(t, conn, []byte{0x05, 0x01, 0x00, 0x01, 1, 2, 3, 4, 0, 80}, zeroReply(0x00))

	r := waitResult(t, ch)
	if r.err != nil {
		t.Fatalf("Run failed: %v", r.err)
	}
	if r.est.Method != socks5.MethodUserPass || r.est.Username != "alice" {
		t.Errorf("unexpected established info: method=%s user=%q", r.est.Method, r.est.Username)
	}
	r.est.Conn.Close()
}

func Test_Session_UserPass_Failure(t *testing.T) {
	cfg := &socks5.Config{
		Authenticator: socks5.StaticCredentials{"alice": "secret"},
		Executor:      staticExecutor(socks5.Binding{}, nil),
	}
	conn, ch := startSession(context.Background(), cfg)
	defer conn.Close()

	exchange(t, conn, []byte{0x05, 0x01, 0x02}, []byte{0x05, 0x02})
	exchange(t, conn,
		[]byte{0x01, 0x05, 'a', 'l', 'i', 'c', 'e', 0x05, 'w', 'r', 'o', 'n', 'g'},
		[]byte{0x01, 0x01},
	)
	expectClosed(t, conn)

	r := waitResult(t, ch)
	if !errors.Is(r.err, socks5.ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed, got %v", r.err)
	}
	if r.state != socks5.StateClosed {
		t.Errorf("state = %s, want Closed", r.state)
	}
}

func Test_Session_UserPass_NotOfferedByClient(t *testing.T) {
	cfg := &socks5.Config{Authenticator: socks5.StaticCredentials{"alice": "secret"}}
	conn, ch := startSession(context.Background(), cfg)
	defer conn.Close()

	// Credentials configured: NoAuth is not acceptable by default.
	exchange(t, conn, []byte{0x05, 0x01, 0x00}, []byte{0x05, 0xFF})

	if r := waitResult(t, ch); !errors.Is(r.err, socks5.ErrNoAcceptableMethod) {
		t.Errorf("expected ErrNoAcceptableMethod, got %v", r.err)
	}
}

func Test_Session_BadVersion_SilentClose(t *testing.T) {
	conn, ch := startSession(context.Background(), &socks5.Config{})
	defer conn.Close()

	go conn.Write([]byte{0x04, 0x01, 0x00, 0x50})
	expectClosed(t, conn)

	r := waitResult(t, ch)
	if !errors.Is(r.err, socks5.ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", r.err)
	}
}

func Test_Session_UnknownCommand(t *testing.T) {
	conn, ch := startSession(context.Background(), &socks5.Config{Executor: staticExecutor(socks5.Binding{}, nil)})
	defer conn.Close()

	exchange(t, conn, []byte{0x05, 0x01, 0x00}, []byte{0x05, 0x00})
	exchange(t, conn, []byte{0x05, 0x09, 0x00, 0x01, 1, 2, 3, 4, 0, 80}, zeroReply(0x07))

	if r := waitResult(t, ch); !errors.Is(r.err, socks5.ErrUnsupportedCommand) {
		t.Errorf("expected ErrUnsupportedCommand, got %v", r.err)
	}
}

func Test_Session_DisabledCommand(t *testing.T) {
	called := false
	cfg := &socks5.Config{
		Executor: socks5.CommandExecutorFunc(func(ctx context.Context, req *socks5.Request) (socks5.Binding, error) {
			called = true
			return socks5.Binding{}, nil
		}),
	}
	conn, ch := startSession(context.Background(), cfg)
	defer conn.Close()

	exchange(t, conn, []byte{0x05, 0x01, 0x00}, []byte{0x05, 0x00})
	exchange(t, conn, []byte{0x05, 0x02, 0x00, 0x01, 1, 2, 3, 4, 0, 80}, zeroReply(0x07))

	r := waitResult(t, ch)
	if !errors.Is(r.err, socks5.ErrUnsupportedCommand) {
		t.Errorf("expected ErrUnsupportedCommand, got %v", r.err)
	}
	if called {
		t.Errorf("executor must not run for a disabled command")
	}
}

func Test_Session_UnknownAddrType(t *testing.T) {
	conn, ch := startSession(context.Background(), &socks5.Config{Executor: staticExecutor(socks5.Binding{}, nil)})
	defer conn.Close()

	exchange(t, conn, []byte{0x05, 0x01, 0x00}, []byte{0x05, 0x00})
	exchange(t, conn, []byte{0x05, 0x01, 0x00, 0x05}, zeroReply(0x08))

	if r := waitResult(t, ch); !errors.Is(r.err, socks5.ErrUnsupportedAddrType) {
		t.Errorf("expected ErrUnsupportedAddrType, got %v", r.err)
	}
}

func Test_Session_Truncated_Timeout(t *testing.T) {
	cfg := &socks5.Config{HandshakeTimeout: 50 * time.Millisecond}
	conn, ch := startSession(context.Background(), cfg)
	defer conn.Close()

	// NMETHODS=2 but only one method follows.
	if _, err := conn.Write([]byte{0x05, 0x02, 0x00}); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := waitResult(t, ch)
	if !errors.Is(r.err, socks5.ErrTruncatedFrame) {
		t.Errorf("expected ErrTruncatedFrame, got %v", r.err)
	}
	if !errors.Is(r.err, os.ErrDeadlineExceeded) {
		t.Errorf("expected deadline error in chain, got %v", r.err)
	}
	if r.state != socks5.StateClosed {
		t.Errorf("state = %s, want Closed", r.state)
	}
}

func Test_Session_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conn, ch := startSession(ctx, &socks5.Config{})
	defer conn.Close()

	time.AfterFunc(20*time.Millisecond, cancel)

	r := waitResult(t, ch)
	if !errors.Is(r.err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", r.err)
	}
	if r.state != socks5.StateClosed {
		t.Errorf("state = %s, want Closed", r.state)
	}
}

func Test_Session_PipelinedPayload(t *testing.T) {
	conn, ch := startSession(context.Background(), &socks5.Config{Executor: staticExecutor(socks5.Binding{}, nil)})
	defer conn.Close()

	var frames []byte
	frames = append(frames, 0x05, 0x01, 0x00)
	frames = append(frames, 0x05, 0x01, 0x00, 0x01, 1, 2, 3, 4, 0, 80)
	frames = append(frames, "hello"...)

	want := append([]byte{0x05, 0x00}, zeroReply(0x00)...)
	exchange(t, conn, frames, want)

	r := waitResult(t, ch)
	if r.err != nil {
		t.Fatalf("Run failed: %v", r.err)
	}
	defer r.est.Conn.Close()

	got := make([]byte, 5)
	r.est.Conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(r.est.Conn, got); err != nil {
		t.Fatalf("read replayed payload: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("replayed payload = %q", got)
	}
}

func Test_Session_RunTwice(t *testing.T) {
	client, server := net.Pipe()
	client.Close()

	s := socks5.NewSession(server, nil)
	if _, err := s.Run(context.Background()); !errors.Is(err, socks5.ErrTruncatedFrame) {
		t.Fatalf("expected ErrTruncatedFrame, got %v", err)
	}
	if _, err := s.Run(context.Background()); err == nil {
		t.Errorf("expected error from second Run")
	}
}

func Test_State_String(t *testing.T) {
	for s := socks5.StateAwaitingGreeting; s <= socks5.StateClosed; s++ {
		if s.String() == "" {
			t.Errorf("State(%d) has empty String()", s)
		}
	}
}
