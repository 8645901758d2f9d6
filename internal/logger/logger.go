// Package logger builds the process logger: human-readable lines on the
// console, and the same entries as JSON in an append-only audit file.
package logger

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	// Console receives the readable log. Defaults to stdout.
	Console zapcore.WriteSyncer
	// AuditFile, when set, receives every entry as JSON.
	AuditFile string
	Debug     bool
}

// New returns the logger and a function that flushes and closes it.
func New(opts Options) (*zap.Logger, func(), error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if opts.Debug {
		level.SetLevel(zap.DebugLevel)
	}
	if opts.Console == nil {
		opts.Console = zapcore.Lock(os.Stdout)
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), opts.Console, level),
	}

	var file *os.File
	if opts.AuditFile != "" {
		f, err := os.OpenFile(opts.AuditFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open audit log")
		}
		file = f
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.Lock(f),
			level,
		))
	}

	log := zap.New(zapcore.NewTee(cores...))
	closeFn := func() {
		_ = log.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return log, closeFn, nil
}
