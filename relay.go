package main

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dimaskiddo/bufrelay/internal/session"
	"github.com/dimaskiddo/bufrelay/internal/transport"
)

// --- Relay Implementation ---
func runRelay(ctx context.Context, addr string, dialer transport.Dialer, cfg session.Config, log *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "relay: listen")
	}

	log.Info("relay listening", zap.String("listen", addr))
	return serveRelay(ctx, ln, dialer, cfg, log)
}

// serveRelay accepts one inbound connection at a time and relays it to a
// freshly dialed outbound stream. The next connection is accepted only after
// the previous session has closed both of its streams. ln is closed when
// serveRelay returns.
func serveRelay(ctx context.Context, ln net.Listener, dialer transport.Dialer, cfg session.Config, log *zap.Logger) error {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() {
		log.Info("shutting down relay listener")
		ln.Close()
	})
	defer stop()

	for {
		in, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return errors.Wrap(err, "relay: accept")
		}

		handleRelay(ctx, in, dialer, cfg, log)
	}
}

func handleRelay(ctx context.Context, in net.Conn, dialer transport.Dialer, cfg session.Config, log *zap.Logger) {
	id := session.NewID()
	log = log.With(zap.String("session", id))
	log.Info("accepted connection", zap.Stringer("remote", in.RemoteAddr()))

	out, err := dialer.DialContext(ctx)
	if err != nil {
		log.Warn("outbound dial failed", zap.Error(err))
		in.Close()
		return
	}

	s, err := session.New(id, in, out, cfg)
	if err != nil {
		log.Error("session setup failed", zap.Error(err))
		in.Close()
		out.Close()
		return
	}

	// Failures are logged by the session and stay local to it.
	_ = s.Run(ctx)
}
