package main

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dimaskiddo/bufrelay/internal/transport"
)

// --- Client Implementation ---
func runClient(ctx context.Context, addr string, r io.Reader, log *zap.Logger) error {
	conn, err := transport.NewTCPDialer(addr, transport.DefaultTimeout).DialContext(ctx)
	if err != nil {
		return errors.Wrap(err, "client: connect")
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log.Info("streaming input", zap.String("target", addr))
	n, err := streamInput(conn, r)
	if err != nil {
		return errors.Wrapf(err, "client: send after %d bytes", n)
	}
	log.Info("input sent", zap.Int64("bytes", n))
	return nil
}

// streamInput sends r to conn without reading a response, then closes conn.
func streamInput(conn net.Conn, r io.Reader) (int64, error) {
	n, err := io.Copy(conn, r)
	if cerr := conn.Close(); err == nil {
		err = cerr
	}
	return n, err
}
