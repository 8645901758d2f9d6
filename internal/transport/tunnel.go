package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/yamux"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const keepAliveInterval = 15 * time.Second

func yamuxConfig(log *zap.Logger) *yamux.Config {
	conf := yamux.DefaultConfig()
	conf.KeepAliveInterval = keepAliveInterval
	conf.LogOutput = nil
	conf.Logger = zap.NewStdLog(log.Named("yamux"))
	return conf
}

// TunnelDialer opens one yamux stream per dial over a shared, enciphered
// carrier connection and asks the far end to connect it to the target.
type TunnelDialer struct {
	tunnel  string
	target  string
	cipher  string
	secret  string
	timeout time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	session *yamux.Session
}

func NewTunnelDialer(tunnel, target, cipher, secret string, timeout time.Duration, log *zap.Logger) *TunnelDialer {
	return &TunnelDialer{
		tunnel:  tunnel,
		target:  target,
		cipher:  cipher,
		secret:  secret,
		timeout: timeout,
		log:     log,
	}
}

func (d *TunnelDialer) DialContext(ctx context.Context) (net.Conn, error) {
	sess, err := d.getSession(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := sess.Open()
	if err != nil {
		return nil, errors.Wrap(err, "tunnel: open stream")
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	} else {
		_ = stream.SetDeadline(time.Now().Add(d.timeout))
	}
	if err := ConnectSocks5(stream, d.target); err != nil {
		stream.Close()
		return nil, err
	}
	_ = stream.SetDeadline(time.Time{})

	return stream, nil
}

func (d *TunnelDialer) getSession(ctx context.Context) (*yamux.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil && !d.session.IsClosed() {
		return d.session, nil
	}

	dialer := net.Dialer{Timeout: d.timeout}
	carrier, err := dialer.DialContext(ctx, "tcp", d.tunnel)
	if err != nil {
		return nil, errors.Wrapf(err, "tunnel: dial %s", d.tunnel)
	}

	stream, err := WrapConn(carrier, d.cipher, d.secret)
	if err != nil {
		carrier.Close()
		return nil, err
	}

	sess, err := yamux.Client(stream, yamuxConfig(d.log))
	if err != nil {
		carrier.Close()
		return nil, errors.Wrap(err, "tunnel: start session")
	}

	d.log.Info("tunnel established", zap.String("tunnel", d.tunnel), zap.String("cipher", d.cipher))
	d.session = sess
	return sess, nil
}

func (d *TunnelDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	return err
}

// TunnelServer terminates carriers opened by TunnelDialer.
type TunnelServer struct {
	Cipher string
	Secret string
	Log    *zap.Logger
	// Dial connects a negotiated target. Defaults to a TCP dial.
	Dial func(ctx context.Context, target string) (net.Conn, error)
	// Handle relays a stream to the connected target. Both are owned by Handle.
	Handle func(ctx context.Context, stream, dest net.Conn, target string)

	wg sync.WaitGroup
}

// Serve accepts carriers from ln until ctx is done or ln fails, then closes ln.
func (s *TunnelServer) Serve(ctx context.Context, ln net.Listener) error {
	if s.Log == nil {
		s.Log = zap.NewNop()
	}
	if s.Dial == nil {
		s.Dial = func(ctx context.Context, target string) (net.Conn, error) {
			return NewTCPDialer(target, DefaultTimeout).DialContext(ctx)
		}
	}

	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.wg.Wait()
			return errors.Wrap(err, "tunnel: accept")
		}

		s.wg.Go(func() {
			s.serveCarrier(ctx, conn)
		})
	}
}

func (s *TunnelServer) serveCarrier(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.Log.With(zap.Stringer("carrier", conn.RemoteAddr()))

	stream, err := WrapConn(conn, s.Cipher, s.Secret)
	if err != nil {
		log.Warn("carrier cipher failed", zap.Error(err))
		return
	}

	sess, err := yamux.Server(stream, yamuxConfig(s.Log))
	if err != nil {
		log.Warn("carrier session failed", zap.Error(err))
		return
	}
	defer sess.Close()

	go func() {
		select {
		case <-ctx.Done():
			sess.Close()
		case <-sess.CloseChan():
		}
	}()

	log.Info("carrier accepted")
	var streams sync.WaitGroup
	for {
		vs, err := sess.Accept()
		if err != nil {
			break
		}
		streams.Go(func() {
			s.serveStream(ctx, log, vs)
		})
	}
	streams.Wait()
	log.Info("carrier closed")
}

func (s *TunnelServer) serveStream(ctx context.Context, log *zap.Logger, vs net.Conn) {
	target, err := NegotiateSocks5(vs)
	if err != nil {
		log.Debug("socks negotiation failed", zap.Error(err))
		vs.Close()
		return
	}

	dest, err := s.Dial(ctx, target)
	if err != nil {
		log.Warn("target dial failed", zap.String("target", target), zap.Error(err))
		_ = ReplySocks5(vs, dialReplyCode(err))
		vs.Close()
		return
	}
	if err := ReplySocks5(vs, socksReplySucceeded); err != nil {
		dest.Close()
		vs.Close()
		return
	}

	log.Info("tunnel stream", zap.String("target", target))
	s.Handle(ctx, vs, dest, target)
}
