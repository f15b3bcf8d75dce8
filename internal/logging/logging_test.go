package logging

import (
	"bytes"
	"encoding/json"
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

func TestLevelString(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(level))
		if err != nil {
			t.Fatalf("round trip %v: %v", level, err)
		}
		if parsed != level {
			t.Errorf("expected %v, got %v", level, parsed)
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

func TestWithDeviceComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, &Config{Level: LevelDebug, Format: FormatJSON})

	logger.WithDevice(3, "keywatcher").Info("grabbed device")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["component"] != "razer.device3.keywatcher" {
		t.Errorf("unexpected component: %v", entry["component"])
	}
}

func TestSetLevelAffectsChildren(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, &Config{Level: LevelInfo})
	child := logger.WithComponent("child")

	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at info level: %q", buf.String())
	}

	logger.SetLevel(LevelDebug)
	child.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("expected debug line after SetLevel, got %q", buf.String())
	}
	if logger.GetLevel() != LevelDebug {
		t.Errorf("expected level debug, got %v", logger.GetLevel())
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"password", true},
		{"api_token", true},
		{"client_secret", true},
		{"code", false},
		{"key_code", false},
		{"device", false},
	}

	for _, test := range tests {
		if got := shouldRedact(test.key); got != test.expected {
			t.Errorf("shouldRedact(%q) = %v, want %v", test.key, got, test.expected)
		}
	}
}

func TestFileRotatorRotation(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		FilePath:   filepath.Join(dir, "razerkbd.log"),
		MaxSize:    1,
		MaxBackups: 2,
	}

	r, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("NewFileRotator: %v", err)
	}
	defer r.Close()

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 6; i++ {
		if _, err := r.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	rotated, err := r.rotatedFiles()
	if err != nil {
		t.Fatalf("rotatedFiles: %v", err)
	}
	if len(rotated) == 0 || len(rotated) > cfg.MaxBackups {
		t.Errorf("expected 1..%d rotated files, got %d", cfg.MaxBackups, len(rotated))
	}
	if _, err := os.Stat(cfg.FilePath); err != nil {
		t.Errorf("current log missing: %v", err)
	}
}

func TestCrashHandlerRecovers(t *testing.T) {
	var buf bytes.Buffer
	var got []CrashReport
	h := NewCrashHandler(&CrashHandlerConfig{
		CrashDir:  t.TempDir(),
		Version:   "test",
		Component: "dispatcher",
		Logger:    NewWithWriter(&buf, &Config{Level: LevelDebug}),
		OnCrash:   func(r CrashReport) { got = append(got, r) },
	})

	ran := false
	h.RecoverWithContext(map[string]any{"code": 30}, func() {
		ran = true
		panic("boom")
	})

	if !ran {
		t.Fatal("function did not run")
	}
	if len(got) != 1 || got[0].PanicValue != "boom" {
		t.Fatalf("unexpected reports: %+v", got)
	}
	if !strings.Contains(buf.String(), "recovered panic") {
		t.Errorf("expected log line, got %q", buf.String())
	}

	reports, err := h.CrashReports()
	if err != nil {
		t.Fatalf("CrashReports: %v", err)
	}
	if len(reports) != 1 || reports[0].Component != "dispatcher" || reports[0].Version != "test" {
		t.Errorf("unexpected stored reports: %+v", reports)
	}
}
