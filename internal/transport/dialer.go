// Package transport produces the outbound byte streams a relay session
// writes to: a plain TCP connection, a stream multiplexed over an
// enciphered yamux tunnel, or a websocket.
package transport

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	TransportTCP       = "tcp"
	TransportTunnel    = "tunnel"
	TransportWebsocket = "ws"

	DefaultTimeout = 30 * time.Second
)

// Dialer opens outbound streams to a fixed target.
type Dialer interface {
	DialContext(ctx context.Context) (net.Conn, error)
	Close() error
}

// Options selects and configures a Dialer.
type Options struct {
	Transport string
	// Target is host:port for tcp and tunnel, a ws:// or wss:// URL for ws.
	Target string
	// Tunnel is the host:port of the tunnel endpoint.
	Tunnel  string
	Cipher  string
	Secret  string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewDialer builds the dialer named by opts.Transport.
func NewDialer(opts Options) (Dialer, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Target == "" {
		return nil, errors.New("transport: no target")
	}

	switch opts.Transport {
	case "", TransportTCP:
		return NewTCPDialer(opts.Target, opts.Timeout), nil
	case TransportTunnel:
		if opts.Tunnel == "" {
			return nil, errors.New("transport: tunnel address required")
		}
		if err := ValidateCipher(opts.Cipher, opts.Secret); err != nil {
			return nil, err
		}
		return NewTunnelDialer(opts.Tunnel, opts.Target, opts.Cipher, opts.Secret, opts.Timeout, opts.Logger), nil
	case TransportWebsocket:
		return NewWebsocketDialer(opts.Target, opts.Timeout), nil
	}
	return nil, errors.Errorf("transport: unknown transport %q", opts.Transport)
}

// TCPDialer dials the target directly.
type TCPDialer struct {
	target string
	dialer net.Dialer
}

func NewTCPDialer(target string, timeout time.Duration) *TCPDialer {
	return &TCPDialer{
		target: target,
		dialer: net.Dialer{Timeout: timeout},
	}
}

func (d *TCPDialer) DialContext(ctx context.Context) (net.Conn, error) {
	conn, err := d.dialer.DialContext(ctx, "tcp", d.target)
	return conn, errors.Wrapf(err, "dial %s", d.target)
}

func (d *TCPDialer) Close() error { return nil }
