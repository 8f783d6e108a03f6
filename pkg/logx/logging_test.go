package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewWriterEmitsStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("campaign", "report"))

	log.Warn("send failed", Int("attempt", 2), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if m["message"] != "send failed" {
		t.Fatalf("message = %v", m["message"])
	}
	if m["level"] != "warn" {
		t.Fatalf("level = %v", m["level"])
	}
	if m["campaign"] != "report" {
		t.Fatalf("campaign = %v", m["campaign"])
	}
	if m["attempt"] != float64(2) {
		t.Fatalf("attempt = %v", m["attempt"])
	}
	if m["err"] != "boom" {
		t.Fatalf("err = %v", m["err"])
	}
}

func TestNewWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	if log.Enabled(LevelInfo) {
		t.Fatal("info should not be enabled at warn level")
	}
}

func TestZeroLoggerIsNop(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	log.Error("ignored")
}

func TestExpandPath(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	got := ExpandPath(" logs/dispatch_{date}.log ", now)
	if got != "logs/dispatch_20261017.log" {
		t.Fatalf("ExpandPath = %q", got)
	}
}

func TestServiceWritesFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "dispatch.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	log.Info("hello", String("k", "v"))
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(b, []byte(`"message":"hello"`)) {
		t.Fatalf("log file missing message: %s", b)
	}
}

func TestConsoleSinksAreProcessStreams(t *testing.T) {
	if Stdout() != os.Stdout || Stderr() != os.Stderr {
		t.Fatal("console sinks should be the process stdout and stderr")
	}
	log := NewConsole("error")
	if log.IsZero() || log.Enabled(LevelInfo) {
		t.Fatal("console logger should be live and honor its level")
	}
}
