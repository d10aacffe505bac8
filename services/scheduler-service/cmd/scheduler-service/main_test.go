package main

import (
	"log/slog"
	"testing"
	"time"
)

func TestParseReminderOffsets(t *testing.T) {
	logger := slog.Default()

	got := parseReminderOffsets("1440,60", logger)
	want := []time.Duration{24 * time.Hour, time.Hour}
	if len(got) != len(want) {
		t.Fatalf("expected %d offsets, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("offset %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	// Junk and non-positive entries are dropped.
	got = parseReminderOffsets(" 30 , abc, -5, 0,", logger)
	if len(got) != 1 || got[0] != 30*time.Minute {
		t.Fatalf("expected [30m], got %v", got)
	}

	// Empty input falls back to defaults.
	got = parseReminderOffsets("", logger)
	if len(got) != 2 || got[0] != 24*time.Hour || got[1] != time.Hour {
		t.Fatalf("expected default offsets, got %v", got)
	}
}
