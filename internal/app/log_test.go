package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestPorvHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		runID   string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			runID:   "run-123",
			level:   slog.LevelInfo,
			message: "submission admitted",
			want:    "2024-06-15T14:30:45Z\tINFO\trun-123\tsubmission admitted\n",
		},
		{
			name:    "debug level",
			runID:   "run-456",
			level:   slog.LevelDebug,
			message: "cache hit",
			want:    "2024-06-15T14:30:45Z\tDEBUG\trun-456\tcache hit\n",
		},
		{
			name:    "with record attrs",
			runID:   "run-789",
			level:   slog.LevelInfo,
			message: "job finished",
			attrs:   []slog.Attr{slog.Int("id", 7), slog.Bool("valid", true)},
			want:    "2024-06-15T14:30:45Z\tINFO\trun-789\tjob finished\tid=7\tvalid=true\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &porvHandler{w: &buf, runID: tt.runID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestPorvHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &porvHandler{w: &buf, runID: "run-1"}

	// Add pre-set attrs
	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "fetcher")}).(*porvHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "download", 0)
	r.AddAttrs(slog.String("hash", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=fetcher") {
		t.Errorf("expected pre-set attr component=fetcher, got: %q", got)
	}
	if !strings.Contains(got, "hash=abc") {
		t.Errorf("expected record attr hash=abc, got: %q", got)
	}
}

func TestPorvHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &porvHandler{w: &buf, runID: "run-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*porvHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestPorvHandler_Enabled(t *testing.T) {
	h := &porvHandler{}
	// All levels should be enabled
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "test-run")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	if logger == nil {
		t.Fatal("newLogger() returned nil logger")
	}
	if f == nil {
		t.Fatal("newLogger() returned nil file")
	}
}
