package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/33TU/socksd/internal/config"
	"github.com/33TU/socksd/internal/logger"
	"github.com/33TU/socksd/internal/metrics"
	"github.com/33TU/socksd/socks5"
)

const programName = "socksd"

func main() {
	ctx := context.Background()
	code, err := run(ctx, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
	}
	os.Exit(code)
}

func run(ctx context.Context, args []string) (int, error) {
	flags := flag.NewFlagSet(programName, flag.ContinueOnError)
	var (
		envFlag     = flags.String("env", "", "path to a .env file (default ./.env if present)")
		networkFlag = flags.String("network", "tcp", "listen network")
	)
	if err := flags.Parse(args); err != nil {
		code := 2
		if errors.Is(err, flag.ErrHelp) {
			code = 0
		}
		return code, nil
	}

	var envFiles []string
	if *envFlag != "" {
		envFiles = append(envFiles, *envFlag)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return 2, err
	}

	log, err := logger.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return 2, err
	}

	opts, err := cfg.ListenerOptions()
	if err != nil {
		return 2, err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	installHooks(opts, log, m)

	if cfg.MetricsListen != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           metricsMux(m),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.MetricsListen).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
		defer srv.Close()
	}

	listener, err := net.Listen(*networkFlag, cfg.Listen)
	if err != nil {
		return 1, err
	}
	log.Info().
		Stringer("addr", listener.Addr()).
		Stringers("methods", methodStringers(opts.Config.Methods)).
		Msg("listening")

	if err := socks5.ServeContext(ctx, listener, opts); err != nil {
		return 1, err
	}

	log.Info().Msg("shutting down")
	return 0, nil
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// installHooks attaches logging and metrics to the listener callbacks.
func installHooks(opts *socks5.ListenerOptions, log zerolog.Logger, m *metrics.Metrics) {
	opts.OnAccept = func(ctx context.Context, opts *socks5.ListenerOptions, conn net.Conn) error {
		log.Debug().Stringer("remote", conn.RemoteAddr()).Msg("accept")
		m.HandshakeStarted()
		return nil
	}
	opts.OnHandshakeDone = func(ctx context.Context, opts *socks5.ListenerOptions, conn net.Conn, elapsed time.Duration, err error) {
		m.HandshakeDone(elapsed, err)
	}
	opts.OnEstablished = func(ctx context.Context, opts *socks5.ListenerOptions, est *socks5.Established) error {
		log.Info().
			Stringer("remote", est.Conn.RemoteAddr()).
			Str("method", est.Method.String()).
			Str("user", est.Username).
			Str("dest", est.Request.Address()).
			Msg("established")

		m.Relays.Inc()
		defer m.Relays.Dec()
		return socks5.Relay(ctx, est)
	}
	opts.OnError = func(ctx context.Context, opts *socks5.ListenerOptions, conn net.Conn, err error) {
		ev := log.Warn().Err(err).Str("outcome", metrics.Outcome(err))
		if conn != nil {
			ev = ev.Stringer("remote", conn.RemoteAddr())
		}
		ev.Msg("connection error")
	}
	opts.OnPanic = func(ctx context.Context, opts *socks5.ListenerOptions, conn net.Conn, r any) {
		log.Error().Interface("panic", r).Stringer("remote", conn.RemoteAddr()).Msg("handler panic")
	}
}

func methodStringers(methods []socks5.Method) []fmt.Stringer {
	out := make([]fmt.Stringer, len(methods))
	for i, m := range methods {
		out[i] = m
	}
	return out
}
