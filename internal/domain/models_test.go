package domain

import (
	"testing"
	"time"
)

func TestFormatTimeTaken(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0ms"},
		{-time.Second, "0ms"},
		{500 * time.Millisecond, "500ms"},
		{2 * time.Minute, "2m"},
		{65*time.Second + 250*time.Millisecond, "1m 5s 250ms"},
		{59 * time.Second, "59s"},
	}
	for _, tc := range cases {
		if got := FormatTimeTaken(tc.in); got != tc.want {
			t.Fatalf("FormatTimeTaken(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStatusMonotonicRanks(t *testing.T) {
	if StatusLobby.Rank() >= StatusInProgress.Rank() {
		t.Fatalf("expected LOBBY to rank below IN_PROGRESS")
	}
	if StatusCompleted.Rank() != StatusDisqualified.Rank() {
		t.Fatalf("terminal states must share a rank so neither overwrites the other")
	}
	if !StatusCompleted.Terminal() || !StatusDisqualified.Terminal() {
		t.Fatalf("expected terminal statuses")
	}
	if StatusInProgress.Terminal() {
		t.Fatalf("IN_PROGRESS must not be terminal")
	}
}

func TestSessionWindow(t *testing.T) {
	start := time.Date(2026, 4, 8, 11, 0, 0, 0, ExamZone)
	session := Session{ID: "s1", StartTime: start, DurationMinutes: 30, SchoolIDs: []string{"sch_01"}}

	if got := session.EndTime(); !got.Equal(start.Add(30 * time.Minute)) {
		t.Fatalf("unexpected end time %v", got)
	}
	if got := session.EntryOpensAt(); !got.Equal(start.Add(-DefaultEntryWindowMinutes * time.Minute)) {
		t.Fatalf("expected default entry window, got %v", got)
	}
	session.EntryWindowMinutes = 5
	if got := session.EntryOpensAt(); !got.Equal(start.Add(-5 * time.Minute)) {
		t.Fatalf("expected 5 minute entry window, got %v", got)
	}
	if !session.Includes("sch_01") || session.Includes("sch_99") {
		t.Fatalf("unexpected school membership")
	}
}
