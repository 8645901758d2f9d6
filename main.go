package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dimaskiddo/bufrelay/internal/logger"
	"github.com/dimaskiddo/bufrelay/internal/session"
	"github.com/dimaskiddo/bufrelay/internal/status"
	"github.com/dimaskiddo/bufrelay/internal/transport"
)

const (
	MinPort         = 1
	MaxPort         = 65535
	ShutdownTimeout = 5 * time.Second
)

var (
	Mode                                  string
	ListenAddr, TargetAddr                string
	Transport, TunnelAddr, Cipher, Secret string
	Capacity, ChunkSize                   int
	SampleInterval                        time.Duration
	PropagateWriteFailure, Debug          bool
	StatusAddr, AuditLogFile              string
)

func parseFlags() {
	flag.StringVar(&Mode, "mode", "relay", "Mode: 'relay', 'tunnel', 'server' or 'client'")
	flag.StringVar(&ListenAddr, "listen", "0.0.0.0:9000", "Listen address (relay, tunnel, server)")
	flag.StringVar(&TargetAddr, "target", "127.0.0.1:9001", "Outbound target host:port, or ws:// URL with -transport ws (relay, client)")
	flag.StringVar(&Transport, "transport", transport.TransportTCP, "Relay outbound transport: 'tcp', 'tunnel' or 'ws'")
	flag.StringVar(&TunnelAddr, "tunnel", "127.0.0.1:9443", "Tunnel endpoint address (relay with -transport tunnel)")
	flag.StringVar(&Cipher, "cipher", transport.CipherXOR, "Tunnel carrier cipher: 'none', 'xor' or a shadowsocks AEAD name")
	flag.StringVar(&Secret, "secret", "THIS_IS_YOUR_SECRET_WORD", "Tunnel carrier secret")
	flag.IntVar(&Capacity, "capacity", session.DefaultCapacity, "Session buffer capacity in bytes")
	flag.IntVar(&ChunkSize, "chunk", session.DefaultChunkSize, "Inbound read size in bytes")
	flag.DurationVar(&SampleInterval, "sample", session.DefaultSampleInterval, "Buffer occupancy sample interval, 0 to disable")
	flag.BoolVar(&PropagateWriteFailure, "propagate-write-failure", false, "Stop reading inbound when the outbound write fails")
	flag.StringVar(&StatusAddr, "status", "", "Status HTTP endpoint address, empty to disable")
	flag.StringVar(&AuditLogFile, "log-file", "./bufrelay.log", "Audit log file path, empty to disable")
	flag.BoolVar(&Debug, "debug", false, "Enable debug logging")
	flag.Parse()
}

func main() {
	parseFlags()

	// The sink server prints relayed bytes on stdout; keep logs off it.
	var console zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
	if Mode == "server" || Mode == "client" {
		console = zapcore.Lock(os.Stderr)
	}

	log, closeLog, err := logger.New(logger.Options{
		Console:   console,
		AuditFile: AuditLogFile,
		Debug:     Debug,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := status.NewTracker()
	if StatusAddr != "" {
		go func() {
			if err := status.Serve(ctx, StatusAddr, tracker, log); err != nil {
				log.Error("status endpoint stopped", zap.Error(err))
			}
		}()
	}

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, log, tracker)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		log.Info("shutting down")
		select {
		case err = <-done:
			log.Info("shutdown complete")
		case <-time.After(ShutdownTimeout):
			log.Warn("shutdown timed out, forcing exit")
		}
	}

	if err != nil {
		log.Error("exit", zap.String("mode", Mode), zap.Error(err))
		closeLog()
		os.Exit(1)
	}
}

func run(ctx context.Context, log *zap.Logger, tracker *status.Tracker) error {
	cfg := sessionConfig(Capacity, ChunkSize, SampleInterval, PropagateWriteFailure)
	cfg.Logger = log
	cfg.Observer = tracker

	switch Mode {
	case "relay":
		if err := validatePort(ListenAddr); err != nil {
			return errors.Wrap(err, "relay: invalid incoming port")
		}
		dialer, err := transport.NewDialer(transport.Options{
			Transport: Transport,
			Target:    TargetAddr,
			Tunnel:    TunnelAddr,
			Cipher:    Cipher,
			Secret:    Secret,
			Logger:    log,
		})
		if err != nil {
			return err
		}
		defer dialer.Close()
		return runRelay(ctx, ListenAddr, dialer, cfg, log)

	case "tunnel":
		if err := validatePort(ListenAddr); err != nil {
			return errors.Wrap(err, "tunnel: invalid port")
		}
		if err := transport.ValidateCipher(Cipher, Secret); err != nil {
			return err
		}
		return runTunnel(ctx, ListenAddr, Cipher, Secret, cfg, log)

	case "server":
		if err := validatePort(ListenAddr); err != nil {
			return errors.Wrap(err, "server: invalid port")
		}
		return runServer(ctx, ListenAddr, os.Stdout, log)

	case "client":
		if err := validatePort(TargetAddr); err != nil {
			return errors.Wrap(err, "client: invalid port")
		}
		return runClient(ctx, TargetAddr, os.Stdin, log)
	}
	return errors.Errorf("unknown mode %q", Mode)
}

// sessionConfig starts from the session defaults and applies the flags.
// Non-positive sizes keep their defaults; a zero interval disables sampling.
func sessionConfig(capacity, chunk int, sample time.Duration, propagate bool) session.Config {
	cfg := session.DefaultConfig()
	if capacity > 0 {
		cfg.Capacity = capacity
	}
	if chunk > 0 {
		cfg.ChunkSize = chunk
	}
	cfg.SampleInterval = sample
	cfg.PropagateWriteFailure = propagate
	return cfg
}

func validatePort(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return errors.Errorf("port %q is not a number", port)
	}
	if n < MinPort || n > MaxPort {
		return errors.Errorf("port %d out of range %d-%d", n, MinPort, MaxPort)
	}
	return nil
}
