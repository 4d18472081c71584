package main

import (
	"testing"
	"time"
)

func TestTitleCase(t *testing.T) {
	cases := map[string]string{
		"upload":          "Upload",
		"mutation":        "Mutation",
		"reach_transition": "Reach Transition",
		"":                "",
		"  ":              "  ",
	}
	for input, want := range cases {
		if got := titleCase(input); got != want {
			t.Errorf("titleCase(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFormatSyncTime(t *testing.T) {
	if got := formatSyncTime(time.Time{}); got != "never" {
		t.Fatalf("zero time: got %q", got)
	}
	stamp := time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local)
	if got := formatSyncTime(stamp); got != "2026-03-14 09:30:00" {
		t.Fatalf("formatted time: got %q", got)
	}
}

func TestBoolKind(t *testing.T) {
	if boolKind(true) != statusOK {
		t.Fatal("true should map to OK")
	}
	if boolKind(false) != statusWarn {
		t.Fatal("false should map to WARN")
	}
}
