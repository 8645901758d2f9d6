package main

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dimaskiddo/bufrelay/internal/transport"
)

func TestRelayThroughTunnel(t *testing.T) {
	for _, cipher := range []string{"xor", "aes-256-gcm"} {
		t.Run(cipher, func(t *testing.T) {
			target, received := startSink(t)
			tunnel := startTunnelEndpoint(t, cipher, "shared-secret")

			d, err := transport.NewDialer(transport.Options{
				Transport: transport.TransportTunnel,
				Target:    target,
				Tunnel:    tunnel,
				Cipher:    cipher,
				Secret:    "shared-secret",
				Timeout:   time.Second,
				Logger:    zap.NewNop(),
			})
			if err != nil {
				t.Fatalf("NewDialer failed: %v", err)
			}
			t.Cleanup(func() { d.Close() })

			relay := startRelay(t, d, testSessionConfig())

			send(t, relay, []byte("relayed over a tunnel"))
			expectReceived(t, received, "relayed over a tunnel")

			send(t, relay, []byte("second stream, same carrier"))
			expectReceived(t, received, "second stream, same carrier")
		})
	}
}

func startTunnelEndpoint(t *testing.T, cipher, secret string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		newTunnelServer(cipher, secret, testSessionConfig(), zap.NewNop()).Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}
