package logger

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sysmon.log")
	l, closeFn, err := New(Options{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("fast tick failed", "loop", "fast")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("expected one json record, got %q: %v", raw, err)
	}
	if rec["msg"] != "fast tick failed" || rec["loop"] != "fast" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewRejectsUnopenableOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "sysmon.log")
	l, closeFn, err := New(Options{Output: path})
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist", err)
	}
	if l != nil || closeFn != nil {
		t.Fatalf("expected no logger on error")
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatalf("expected a logger for nil input")
	}
	l := slog.Default()
	if OrDiscard(l) != l {
		t.Fatalf("expected passthrough")
	}
}
