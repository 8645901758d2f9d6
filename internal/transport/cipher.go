package transport

import (
	"crypto/sha256"
	"net"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shadowsocks/go-shadowsocks2/core"
)

const (
	CipherNone = "none"
	CipherXOR  = "xor"
)

// WrapConn enciphers a carrier connection. method is "none", "xor" or a
// shadowsocks AEAD name such as "aes-256-gcm" or "chacha20-ietf-poly1305".
func WrapConn(conn net.Conn, method, secret string) (net.Conn, error) {
	switch strings.ToLower(method) {
	case "", CipherNone:
		return conn, nil
	case CipherXOR:
		if secret == "" {
			return nil, errors.New("xor cipher needs a secret")
		}
		return newXorConn(conn, secret), nil
	}

	if secret == "" {
		return nil, errors.Errorf("cipher %s needs a secret", method)
	}
	ciph, err := core.PickCipher(method, nil, secret)
	if err != nil {
		return nil, errors.Wrapf(err, "pick cipher %s", method)
	}
	return ciph.StreamConn(conn), nil
}

// ValidateCipher reports whether method is usable without wrapping anything.
func ValidateCipher(method, secret string) error {
	switch strings.ToLower(method) {
	case "", CipherNone:
		return nil
	case CipherXOR:
		if secret == "" {
			return errors.New("xor cipher needs a secret")
		}
		return nil
	}
	_, err := core.PickCipher(method, nil, secret)
	return errors.Wrapf(err, "pick cipher %s", method)
}

// keystream is a 32-byte repeating key derived from the carrier secret.
type keystream []byte

func newKeystream(secret string) keystream {
	sum := sha256.Sum256([]byte("bufrelay-xor:" + secret))
	return sum[:]
}

// apply XORs src into dst from offset pos and returns the offset after it.
func (k keystream) apply(dst, src []byte, pos int) int {
	for i, b := range src {
		dst[i] = b ^ k[(pos+i)%len(k)]
	}
	return (pos + len(src)) % len(k)
}

// xorConn applies the keystream to both directions of a connection.
// It obscures the carrier; it is not encryption.
type xorConn struct {
	net.Conn
	key keystream

	muR  sync.Mutex
	rPos int

	muW  sync.Mutex
	wPos int
}

func newXorConn(conn net.Conn, secret string) *xorConn {
	return &xorConn{Conn: conn, key: newKeystream(secret)}
}

func (x *xorConn) Read(p []byte) (int, error) {
	x.muR.Lock()
	defer x.muR.Unlock()

	n, err := x.Conn.Read(p)
	x.rPos = x.key.apply(p[:n], p[:n], x.rPos)
	return n, err
}

// Write advances the stream only by what the peer actually received.
func (x *xorConn) Write(p []byte) (int, error) {
	x.muW.Lock()
	defer x.muW.Unlock()

	buf := make([]byte, len(p))
	x.key.apply(buf, p, x.wPos)
	n, err := x.Conn.Write(buf)
	x.wPos = (x.wPos + n) % len(x.key)
	return n, err
}
