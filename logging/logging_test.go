package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRotatingWriter_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	w, err := NewRotatingWriter(path, 64)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	line := []byte(strings.Repeat("x", 40) + "\n")
	for i := 0; i < 3; i++ {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected backup file: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() > 64 {
		t.Fatalf("current file not rotated: %d bytes", info.Size())
	}
}

func TestRotatingWriter_TruncatesOversizedOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	if err := os.WriteFile(path, []byte(strings.Repeat("y", 200)), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	w, err := NewRotatingWriter(path, 100)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	if w.size != 0 {
		t.Fatalf("expected truncated file, size=%d", w.size)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
