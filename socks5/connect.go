package socks5

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// DialExecutor is a CommandExecutor that serves CONNECT by dialing the
// destination over TCP. BIND and UDP ASSOCIATE are answered with
// RepCommandNotSupported.
type DialExecutor struct {
	// Dialer dials destinations. (nil=DefaultDialer)
	Dialer *net.Dialer

	// ZeroBinding reports 0.0.0.0:0 as BND.ADDR/BND.PORT instead of the
	// local address of the outbound connection.
	ZeroBinding bool
}

// Prepare dials the requested destination.
func (e *DialExecutor) Prepare(ctx context.Context, req *Request) (Binding, error) {
	if req.Command != CmdConnect {
		return Binding{}, NewExecutionError(RepCommandNotSupported, fmt.Errorf("%s is not implemented", req.Command))
	}

	dialer := e.Dialer
	if dialer == nil {
		dialer = DefaultDialer
	}

	address := req.Address()
	target, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return Binding{}, NewExecutionError(dialReplyCode(err), fmt.Errorf("connect to %s: %w", address, err))
	}

	b := Binding{Addr: ZeroAddr, Conn: target}
	if !e.ZeroBinding {
		if addr, port, err := AddrFromNetAddr(target.LocalAddr()); err == nil {
			b.Addr, b.Port = addr, port
		}
	}
	return b, nil
}

// dialReplyCode maps a dial failure to the closest reply code.
func dialReplyCode(err error) ReplyCode {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		return RepHostUnreachable
	case errors.Is(err, syscall.ECONNREFUSED):
		return RepConnectionRefused
	case errors.Is(err, syscall.ENETUNREACH):
		return RepNetworkUnreachable
	case errors.Is(err, syscall.EHOSTUNREACH):
		return RepHostUnreachable
	case errors.As(err, &netErr) && netErr.Timeout():
		return RepTTLExpired
	default:
		return RepHostUnreachable
	}
}

// Relay copies data between the client and the upstream connection of an
// established CONNECT until both directions finish or ctx is cancelled.
// Both connections are closed on return.
func Relay(ctx context.Context, est *Established) error {
	client, upstream := est.Conn, est.Binding.Conn
	if upstream == nil {
		client.Close()
		return errors.New("socks5: relay: no upstream connection")
	}
	defer client.Close()
	defer upstream.Close()

	g, ctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(ctx, func() {
		client.Close()
		upstream.Close()
	})
	defer stop()

	g.Go(func() error {
		_, err := io.Copy(upstream, client)
		closeWrite(upstream)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(client, upstream)
		closeWrite(client)
		return err
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}

func closeWrite(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
		return
	}
	conn.Close()
}
