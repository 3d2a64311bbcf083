package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelStringRoundTrip(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		got, err := ParseLevel(LevelString(level))
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", LevelString(level), err)
		}
		if got != level {
			t.Errorf("expected %v, got %v", level, got)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("json: got %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("empty: got %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if cfg.Component != "cryptoservices" {
		t.Errorf("expected component cryptoservices, got %s", cfg.Component)
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"seed", true},
		{"reseed_seed", true},
		{"nonce", true},
		{"Personalization", true},
		{"secret", true},
		{"property", false},
		{"bits", false},
		{"strategy", false},
		{"scope", false},
	}

	for _, test := range tests {
		if got := shouldRedact(test.key); got != test.expected {
			t.Errorf("shouldRedact(%q) = %v, want %v", test.key, got, test.expected)
		}
	}
}

func TestJSONFormatRedacts(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: LevelDebug, Format: FormatJSON, Component: "entropy"})

	l.Info("reseeded", "seed", []byte{1, 2, 3}, "bits", 256)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON output: %v (%s)", err, buf.String())
	}
	if entry["seed"] != "[REDACTED]" {
		t.Errorf("seed not redacted: %v", entry["seed"])
	}
	if entry["bits"] != float64(256) {
		t.Errorf("bits = %v", entry["bits"])
	}
	if entry["component"] != "entropy" {
		t.Errorf("component = %v", entry["component"])
	}
}

func TestRawBytesLoggedAsLength(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: LevelInfo, Format: FormatText})

	l.Info("sample", "out", make([]byte, 32))

	if !strings.Contains(buf.String(), "out=\"[32 bytes]\"") {
		t.Errorf("raw bytes not reduced to length: %q", buf.String())
	}
}

func TestLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: LevelInfo, Format: FormatText})

	l.WithComponent("daemon").Info("started")

	if !strings.Contains(buf.String(), "component=daemon") {
		t.Errorf("expected component attribute, got %q", buf.String())
	}
}

func TestNilLoggerOr(t *testing.T) {
	var l *Logger
	if l.Or() == nil {
		t.Fatal("Or on nil logger returned nil")
	}
}

func TestFileRotator(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{FilePath: filepath.Join(dir, "sub", "test.log"), MaxSize: 1, MaxBackups: 2}

	r, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("NewFileRotator: %v", err)
	}
	defer r.Close()

	if _, err := r.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := r.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestFileRotatorRotation(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{FilePath: filepath.Join(dir, "test.log"), MaxSize: 1, MaxBackups: 5}

	r, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("NewFileRotator: %v", err)
	}

	chunk := bytes.Repeat([]byte("x"), 700*1024)
	for i := 0; i < 3; i++ {
		if _, err := r.Write(chunk); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	backups, err := r.Backups()
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(backups) == 0 {
		t.Error("expected at least one rotated file")
	}
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditWriter(&buf, "registrar")

	ev := PropertyEvent("set_global", "dsaDefaultParams", 7, 4)
	if err := a.Record(context.Background(), ev); err != nil {
		t.Fatalf("Record: %v", err)
	}

	var got AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.EventType != AuditEventPropertySet {
		t.Errorf("event type = %s", got.EventType)
	}
	if got.Component != "registrar" {
		t.Errorf("component = %s", got.Component)
	}
	if got.Scope != 7 || got.Resource != "dsaDefaultParams" {
		t.Errorf("unexpected event %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp not filled in")
	}
}

func TestAuditEventBuilders(t *testing.T) {
	if ev := PropertyEvent("clear_thread", "ecImplicitlyCA", 1, 1); ev.EventType != AuditEventPropertyCleared {
		t.Errorf("clear mapped to %s", ev.EventType)
	}
	if ev := ConstraintsEvent("bits-of-security", false); ev.Result != ResultIgnored {
		t.Errorf("ignored constraints result = %s", ev.Result)
	}
	if ev := DeniedEvent("set_global", errors.New("permission: denied")); ev.Result != ResultDenied {
		t.Errorf("denied result = %s", ev.Result)
	}
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) Record(context.Context, AuditEvent) error {
	f.calls++
	return errors.New("disk full")
}

func TestRecordersTriesAll(t *testing.T) {
	first := &failingRecorder{}
	var buf bytes.Buffer
	rs := Recorders{first, nil, NewAuditWriter(&buf, "x")}

	err := rs.Record(context.Background(), AuditEvent{EventType: AuditEventStartup, Action: "start"})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if first.calls != 1 {
		t.Errorf("first recorder called %d times", first.calls)
	}
	if buf.Len() == 0 {
		t.Error("later recorder not reached")
	}
}

func TestCrashHandlerRun(t *testing.T) {
	dir := t.TempDir()
	var seen []CrashReport
	h := NewCrashHandler(&CrashHandlerConfig{
		Dir:       dir,
		Component: "daemon",
		Logger:    Discard(),
		OnCrash:   func(r CrashReport) { seen = append(seen, r) },
	})

	if ok := h.Run(nil, func() {}); !ok {
		t.Error("Run reported failure for a clean function")
	}
	if ok := h.Run(map[string]any{"task": "gather"}, func() { panic("boom") }); ok {
		t.Error("Run reported success for a panicking function")
	}

	if len(seen) != 1 || seen[0].PanicValue != "boom" {
		t.Fatalf("unexpected crash callbacks: %+v", seen)
	}

	reports, err := h.Reports()
	if err != nil {
		t.Fatalf("Reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report on disk, got %d", len(reports))
	}
	if reports[0].Context["task"] != "gather" {
		t.Errorf("context lost: %v", reports[0].Context)
	}
}
