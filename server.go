package main

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// --- Sink Server Implementation ---
func runServer(ctx context.Context, addr string, w io.Writer, log *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "server: listen")
	}

	log.Info("server listening", zap.String("listen", addr))
	return serveSink(ctx, ln, w, log)
}

// serveSink handles one client at a time until ctx is done or ln fails.
func serveSink(ctx context.Context, ln net.Listener, w io.Writer, log *zap.Logger) error {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() {
		log.Info("shutting down server listener")
		ln.Close()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
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
			return errors.Wrap(err, "server: accept")
		}

		handleSink(ctx, conn, w, log)
	}
}

// handleSink copies everything a client sends to w. Cancelling ctx closes
// the connection and ends the copy.
func handleSink(ctx context.Context, conn net.Conn, w io.Writer, log *zap.Logger) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log = log.With(zap.Stringer("remote", conn.RemoteAddr()))
	log.Info("accepted connection")

	n, err := io.Copy(w, conn)
	switch {
	case ctx.Err() != nil:
		log.Info("connection closed on shutdown", zap.Int64("bytes", n))
	case err != nil:
		log.Warn("receive failed", zap.Int64("bytes", n), zap.Error(err))
	default:
		log.Info("connection closed", zap.Int64("bytes", n))
	}
}
