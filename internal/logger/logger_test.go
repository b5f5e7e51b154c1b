package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"chatty":  zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := New(&buf, "warn", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()

	log.Info().Msg("quiet")
	log.Warn().Str("input", "a.zip").Msg("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("info line written at warn level: %q", out)
	}
	if !strings.Contains(out, "loud") || !strings.Contains(out, "a.zip") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baler.log")
	var buf bytes.Buffer
	log, closer, err := New(&buf, "info", path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info().Str("run_id", "r1").Msg("batch finished")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"run_id":"r1"`) {
		t.Fatalf("log file = %q", data)
	}
}

func TestNewBadFile(t *testing.T) {
	_, closer, err := New(&bytes.Buffer{}, "info", filepath.Join(t.TempDir(), "missing", "x.log"))
	if err == nil {
		t.Fatal("expected error for unwritable log file")
	}
	if closer == nil {
		t.Fatal("closer must never be nil")
	}
}
