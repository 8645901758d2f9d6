package transport

import (
	"context"
	"io"
	"net"
	"syscall"

	"github.com/pkg/errors"
	"github.com/shadowsocks/go-shadowsocks2/socks"
)

const (
	socksVersion    = 0x05
	socksNoAuth     = 0x00
	socksCmdConnect = 0x01

	socksReplySucceeded          = 0x00
	socksReplyGeneralFailure     = 0x01
	socksReplyHostUnreachable    = 0x04
	socksReplyConnectionRefused  = 0x05
	socksReplyCommandUnsupported = 0x07
)

var (
	ErrSocksVersion = errors.New("socks: wrong version, use SOCKS5")
	ErrSocksCommand = errors.New("socks: only CONNECT is supported")
	ErrSocksRefused = errors.New("socks: connect refused by tunnel")
)

// NegotiateSocks5 performs the server side of a no-auth SOCKS5 CONNECT and
// returns the requested target. The caller must answer with ReplySocks5.
func NegotiateSocks5(rw io.ReadWriter) (string, error) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(rw, header); err != nil {
		return "", errors.Wrap(err, "socks: read greeting")
	}
	if header[0] != socksVersion {
		return "", ErrSocksVersion
	}

	methods := make([]byte, int(header[1]))
	if _, err := io.ReadFull(rw, methods); err != nil {
		return "", errors.Wrap(err, "socks: read methods")
	}
	if _, err := rw.Write([]byte{socksVersion, socksNoAuth}); err != nil {
		return "", errors.Wrap(err, "socks: write method")
	}

	req := make([]byte, 3)
	if _, err := io.ReadFull(rw, req); err != nil {
		return "", errors.Wrap(err, "socks: read request")
	}
	if req[0] != socksVersion {
		return "", ErrSocksVersion
	}
	if req[1] != socksCmdConnect {
		_ = ReplySocks5(rw, socksReplyCommandUnsupported)
		return "", ErrSocksCommand
	}

	addr, err := socks.ReadAddr(rw)
	if err != nil {
		return "", errors.Wrap(err, "socks: read address")
	}
	return addr.String(), nil
}

// ReplySocks5 answers a CONNECT request with the given reply code.
func ReplySocks5(w io.Writer, code byte) error {
	_, err := w.Write([]byte{socksVersion, code, 0x00, socks.AtypIPv4, 0, 0, 0, 0, 0, 0})
	return errors.Wrap(err, "socks: write reply")
}

// dialReplyCode maps a failed target dial to the SOCKS5 reply sent back.
func dialReplyCode(err error) byte {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return socksReplyConnectionRefused
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || errors.Is(err, context.DeadlineExceeded) {
		return socksReplyHostUnreachable
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return socksReplyHostUnreachable
	}
	return socksReplyGeneralFailure
}

// ConnectSocks5 performs the client side of a no-auth SOCKS5 CONNECT to target.
func ConnectSocks5(rw io.ReadWriter, target string) error {
	addr := socks.ParseAddr(target)
	if addr == nil {
		return errors.Errorf("socks: invalid target %q", target)
	}

	if _, err := rw.Write([]byte{socksVersion, 1, socksNoAuth}); err != nil {
		return errors.Wrap(err, "socks: write greeting")
	}
	method := make([]byte, 2)
	if _, err := io.ReadFull(rw, method); err != nil {
		return errors.Wrap(err, "socks: read method")
	}
	if method[0] != socksVersion {
		return ErrSocksVersion
	}
	if method[1] != socksNoAuth {
		return errors.Errorf("socks: unsupported method %#x", method[1])
	}

	req := append([]byte{socksVersion, socksCmdConnect, 0x00}, addr...)
	if _, err := rw.Write(req); err != nil {
		return errors.Wrap(err, "socks: write request")
	}

	reply := make([]byte, 3)
	if _, err := io.ReadFull(rw, reply); err != nil {
		return errors.Wrap(err, "socks: read reply")
	}
	if _, err := socks.ReadAddr(rw); err != nil {
		return errors.Wrap(err, "socks: read bound address")
	}
	if reply[1] != socksReplySucceeded {
		return errors.Wrapf(ErrSocksRefused, "reply code %#x", reply[1])
	}
	return nil
}
