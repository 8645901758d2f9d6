package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesConsoleAndAudit(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "audit.log")

	log, closeFn, err := New(Options{Console: zapcore.AddSync(&console), AuditFile: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Info("session started", zap.String("session", "abc"))
	log.Debug("hidden at info level")
	closeFn()

	if !strings.Contains(console.String(), "session started") {
		t.Fatalf("console missing entry: %q", console.String())
	}
	if strings.Contains(console.String(), "hidden") {
		t.Fatal("debug entry logged at info level")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &entry); err != nil {
		t.Fatalf("audit line is not JSON: %v (%q)", err, raw)
	}
	if entry["msg"] != "session started" || entry["session"] != "abc" {
		t.Fatalf("unexpected audit entry: %v", entry)
	}
}

func TestNewDebug(t *testing.T) {
	var console bytes.Buffer
	log, closeFn, err := New(Options{Console: zapcore.AddSync(&console), Debug: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Debug("visible")
	closeFn()

	if !strings.Contains(console.String(), "visible") {
		t.Fatal("debug entry missing with Debug set")
	}
}

func TestNewBadAuditPath(t *testing.T) {
	_, _, err := New(Options{AuditFile: filepath.Join(t.TempDir(), "missing", "audit.log")})
	if err == nil {
		t.Fatal("expected an error for an unwritable audit path")
	}
}
