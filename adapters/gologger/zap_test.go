package gologger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLoggerToWriter(&buf, "info")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.Debug("hidden", "k", "v")
	logger.GetLogger("tendlc").Info("brand submitted", "tenant_id", "tenant-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above debug level, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	if entry["msg"] != "brand submitted" || entry["tenant_id"] != "tenant-1" {
		t.Fatalf("expected message and fields, got %#v", entry)
	}
	if entry["logger"] != "tendlc" || entry["level"] != "info" {
		t.Fatalf("expected named info entry, got %#v", entry)
	}
}

func TestZapLoggerWithFieldsIsStable(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLoggerFromCore(core)

	scoped := logger.WithFields(map[string]any{"tenant_id": "tenant-1", "brand_id": "brand-1"})
	scoped.Warn("status regressed", "from", "approved")
	scoped.Trace("trace maps to debug")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["tenant_id"] != "tenant-1" || fields["brand_id"] != "brand-1" || fields["from"] != "approved" {
		t.Fatalf("expected scoped fields, got %#v", fields)
	}
	if entries[0].Context[0].Key != "brand_id" {
		t.Fatalf("expected sorted field order, got %q first", entries[0].Context[0].Key)
	}
	if entries[1].Level != zapcore.DebugLevel {
		t.Fatalf("expected trace at debug level, got %s", entries[1].Level)
	}
	if logger.WithFields(nil) != logger {
		t.Fatalf("expected empty fields to return the same logger")
	}
}

func TestZapLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewZapLoggerToWriter(&bytes.Buffer{}, "loud"); err == nil {
		t.Fatalf("expected invalid level error")
	}
	if _, err := NewZapLoggerToWriter(nil, "info"); err == nil {
		t.Fatalf("expected nil writer error")
	}
}

func TestZapLoggerRotatesIntoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tendlc.log")
	logger, err := NewZapLogger(ZapConfig{Level: "debug", FilePath: path})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("poller tick", "checked", 3)
	_ = logger.Sync()

	_, resolved := Resolve("tendlc", logger, nil)
	if resolved == nil {
		t.Fatalf("expected zap logger to serve as provider")
	}
}
