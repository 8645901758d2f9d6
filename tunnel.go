package main

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dimaskiddo/bufrelay/internal/session"
	"github.com/dimaskiddo/bufrelay/internal/transport"
)

// --- Tunnel Implementation ---
func runTunnel(ctx context.Context, addr, cipher, secret string, cfg session.Config, log *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "tunnel: listen")
	}

	log.Info("tunnel listening", zap.String("listen", addr), zap.String("cipher", cipher))
	return newTunnelServer(cipher, secret, cfg, log).Serve(ctx, ln)
}

// newTunnelServer relays every tunnelled stream to its target through a
// buffered session of its own.
func newTunnelServer(cipher, secret string, cfg session.Config, log *zap.Logger) *transport.TunnelServer {
	return &transport.TunnelServer{
		Cipher: cipher,
		Secret: secret,
		Log:    log,
		Handle: func(ctx context.Context, stream, dest net.Conn, target string) {
			s, err := session.New("", stream, dest, cfg)
			if err != nil {
				log.Error("session setup failed", zap.String("target", target), zap.Error(err))
				stream.Close()
				dest.Close()
				return
			}
			log.Debug("tunnel session", zap.String("session", s.ID()), zap.String("target", target))
			_ = s.Run(ctx)
		},
	}
}
