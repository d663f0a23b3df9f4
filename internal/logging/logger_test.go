package logging

import (
	"log/slog"
	"testing"
	"time"
)

func TestGetLoggerReturnsSameInstance(t *testing.T) {
	a := GetLogger("testmod")
	b := GetLogger("testmod")
	if a != b {
		t.Error("expected the same logger instance for the same module")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"ERROR", slog.LevelError, true},
		{"verbose", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got := parseLevel(tt.input)
		if tt.ok {
			if got == nil {
				t.Errorf("parseLevel(%q) = nil, want %v", tt.input, tt.want)
			} else if *got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
			}
		} else if got != nil {
			t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
		}
	}
}

func TestRingBufferWrapAround(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Write(LogEntry{Message: string(rune('a' + i)), Timestamp: time.Now()})
	}

	entries := rb.ReadAll()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	// Oldest two overwritten; c, d, e remain in order
	want := []string{"c", "d", "e"}
	for i, e := range entries {
		if e.Message != want[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Message, want[i])
		}
	}
}

func TestRingBufferEmpty(t *testing.T) {
	rb := NewRingBuffer(4)
	if got := rb.ReadAll(); got != nil {
		t.Errorf("expected nil for empty buffer, got %v", got)
	}
	if rb.Count() != 0 {
		t.Errorf("expected count 0, got %d", rb.Count())
	}
}

func TestInitializeAppliesModuleLevels(t *testing.T) {
	_ = GetLogger("quietmod")

	Initialize(Config{
		Level:   "info",
		Format:  "text",
		Modules: map[string]string{"quietmod": "error"},
	})

	mutex.RLock()
	lv := moduleLevelVars["quietmod"]
	mutex.RUnlock()

	if lv == nil {
		t.Fatal("expected level var for quietmod")
	}
	if lv.Level() != slog.LevelError {
		t.Errorf("quietmod level = %v, want error", lv.Level())
	}
}
