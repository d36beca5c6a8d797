package socks5

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ListenerOptions defines behavior for a SOCKS5 listener.
// If a callback returns an error, the client connection is closed.
type ListenerOptions struct {
	// Config is shared by every session.
	Config Config

	// MaxHandshakes caps concurrent handshakes. (0=unlimited)
	MaxHandshakes int64

	// AcceptLimiter throttles Accept calls. (nil=unlimited)
	AcceptLimiter *rate.Limiter

	// OnAccept is called for each accepted connection.
	OnAccept func(ctx context.Context, opts *ListenerOptions, conn net.Conn) error

	// OnHandshakeDone is called when a handshake finishes, with err nil on
	// success.
	OnHandshakeDone func(ctx context.Context, opts *ListenerOptions, conn net.Conn, elapsed time.Duration, err error)

	// OnEstablished is called after a successful handshake and owns the
	// connections from then on. Default is Relay.
	OnEstablished func(ctx context.Context, opts *ListenerOptions, est *Established) error

	// OnError is called for each accept or connection error.
	OnError func(ctx context.Context, opts *ListenerOptions, conn net.Conn, err error)

	// Called when a panic occurs in any handler goroutine.
	// The recovered value is passed as 'r'.
	OnPanic func(ctx context.Context, opts *ListenerOptions, conn net.Conn, r any)
}

func OnAcceptDefault(ctx context.Context, opts *ListenerOptions, conn net.Conn) error {
	return nil // no-op
}

func OnHandshakeDoneDefault(ctx context.Context, opts *ListenerOptions, conn net.Conn, elapsed time.Duration, err error) {
	// no-op
}

func OnEstablishedDefault(ctx context.Context, opts *ListenerOptions, est *Established) error {
	return Relay(ctx, est)
}

func OnErrorDefault(ctx context.Context, opts *ListenerOptions, conn net.Conn, err error) {
	// no-op
}

func OnPanicDefault(ctx context.Context, opts *ListenerOptions, conn net.Conn, r any) {
	// no-op
}

const maxAcceptDelay = time.Second

// ServeContext runs a SOCKS5 listener loop until the context is canceled.
// Each accepted connection runs in its own goroutine.
func ServeContext(ctx context.Context, listener net.Listener, opts *ListenerOptions) error {
	if opts == nil {
		opts = &ListenerOptions{}
	}

	// Ensure listener closes on context cancel
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	// Init defaults
	if opts.OnAccept == nil {
		opts.OnAccept = OnAcceptDefault
	}
	if opts.OnHandshakeDone == nil {
		opts.OnHandshakeDone = OnHandshakeDoneDefault
	}
	if opts.OnEstablished == nil {
		opts.OnEstablished = OnEstablishedDefault
	}
	if opts.OnError == nil {
		opts.OnError = OnErrorDefault
	}
	if opts.OnPanic == nil {
		opts.OnPanic = OnPanicDefault
	}

	var sem *semaphore.Weighted
	if opts.MaxHandshakes > 0 {
		sem = semaphore.NewWeighted(opts.MaxHandshakes)
	}

	// Main loop
	var delay time.Duration
	for {
		if opts.AcceptLimiter != nil {
			if err := opts.AcceptLimiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			opts.OnError(ctx, opts, nil, err)

			// Back off on persistent failures such as EMFILE.
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(delay*2, maxAcceptDelay)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		go serveConn(ctx, opts, sem, conn)
	}
}

// Serve runs ServeContext with a background context.
func Serve(listener net.Listener, opts *ListenerOptions) error {
	return ServeContext(context.Background(), listener, opts)
}

func serveConn(ctx context.Context, opts *ListenerOptions, sem *semaphore.Weighted, conn net.Conn) {
	var est *Established
	defer func() {
		if r := recover(); r != nil {
			opts.OnPanic(ctx, opts, conn, r)
		}
		conn.Close()
		if est != nil && est.Binding.Conn != nil {
			est.Binding.Conn.Close()
		}
	}()

	// Accept
	if err := opts.OnAccept(ctx, opts, conn); err != nil {
		opts.OnError(ctx, opts, conn, err)
		return
	}

	// Handshake
	start := time.Now()
	est, err := handshake(ctx, opts, sem, conn)
	opts.OnHandshakeDone(ctx, opts, conn, time.Since(start), err)
	if err != nil {
		opts.OnError(ctx, opts, conn, err)
		return
	}

	// Relay
	if err := opts.OnEstablished(ctx, opts, est); err != nil {
		opts.OnError(ctx, opts, est.Conn, err)
	}
}

func handshake(ctx context.Context, opts *ListenerOptions, sem *semaphore.Weighted, conn net.Conn) (*Established, error) {
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer sem.Release(1)
	}
	return NewSession(conn, &opts.Config).Run(ctx)
}
