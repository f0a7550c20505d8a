package model

import (
	"encoding/json"
	"strings"
	"testing"
)

// TestDisplayStateFor checks the flag-to-display mapping for every lifecycle.
func TestDisplayStateFor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		lifecycle LifecycleFlag
		general   bool
		image     bool
		expected  DisplayState
	}{
		{"fresh both", LifecycleFresh, true, true, DisplayFullyProtected},
		{"fresh general", LifecycleFresh, true, false, DisplayPartiallyProtected},
		{"fresh image", LifecycleFresh, false, true, DisplayPartiallyProtected},
		{"fresh none", LifecycleFresh, false, false, DisplayNotProtected},
		{"stale both", LifecycleStale, true, true, DisplayFullyProtected},
		{"stale none", LifecycleStale, false, false, DisplayNotProtected},
		{"loading", LifecycleLoading, false, false, DisplayChecking},
		{"unavailable", LifecycleUnavailable, false, false, DisplayUnavailable},
		{"unknown lifecycle", LifecycleFlag(99), true, true, DisplayUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := NewRecord(1, ScanResult{GeneralOptOut: tc.general, ImageOptOut: tc.image}, tc.lifecycle)
			if got := DisplayStateFor(r); got != tc.expected {
				t.Errorf("got %s, expected %s", got, tc.expected)
			}
		})
	}
}

// TestDisplayStateNames tests String/Parse round trips.
func TestDisplayStateNames(t *testing.T) {
	t.Parallel()

	expected := []string{"checking", "fully-protected", "partially-protected", "not-protected", "unavailable"}
	states := AllDisplayStates()
	if len(states) != len(expected) {
		t.Fatalf("expected %d states, got %d", len(expected), len(states))
	}

	for i, s := range states {
		if s.String() != expected[i] {
			t.Errorf("state %d: got %q, expected %q", i, s.String(), expected[i])
		}
		parsed, err := ParseDisplayState(expected[i])
		if err != nil {
			t.Fatalf("parse %q: %v", expected[i], err)
		}
		if parsed != s {
			t.Errorf("parse %q: got %v", expected[i], parsed)
		}
	}

	if _, err := ParseDisplayState("protected-ish"); err == nil {
		t.Error("expected error for unknown state")
	}
	if DisplayState(77).String() != "unknown" {
		t.Error("expected unknown for out-of-range state")
	}
}

// TestDisplayStateProtected tests the Protected helper.
func TestDisplayStateProtected(t *testing.T) {
	t.Parallel()

	if !DisplayFullyProtected.Protected() || !DisplayPartiallyProtected.Protected() {
		t.Error("protected states should report Protected")
	}
	for _, s := range []DisplayState{DisplayChecking, DisplayNotProtected, DisplayUnavailable} {
		if s.Protected() {
			t.Errorf("%s should not report Protected", s)
		}
	}
}

// TestCopyFor verifies every state has user-facing text.
func TestCopyFor(t *testing.T) {
	t.Parallel()

	for _, s := range AllDisplayStates() {
		c := CopyFor(Display{State: s})
		if c.Title == "" || c.Subtitle == "" || c.Explanation == "" {
			t.Errorf("missing copy for %s", s)
		}
	}

	restricted := CopyFor(Display{State: DisplayUnavailable, Restricted: true})
	if restricted.Title != "Restricted Page" {
		t.Errorf("expected restricted title, got %q", restricted.Title)
	}
	unavailable := CopyFor(Display{State: DisplayUnavailable})
	if unavailable.Title == restricted.Title {
		t.Error("restricted and unavailable should use different copy")
	}
}

// TestSummarize tests counting reports per display state.
func TestSummarize(t *testing.T) {
	t.Parallel()

	reports := []*InspectionReport{
		{Display: Display{State: DisplayFullyProtected}},
		{Display: Display{State: DisplayFullyProtected}},
		{Display: Display{State: DisplayNotProtected}},
		nil,
	}

	s := Summarize(reports)
	if s.Total != 3 {
		t.Errorf("expected total 3, got %d", s.Total)
	}
	if s.Counts[DisplayFullyProtected] != 2 {
		t.Errorf("expected 2 fully protected, got %d", s.Counts[DisplayFullyProtected])
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if want := `"fully-protected":2`; !strings.Contains(string(data), want) {
		t.Errorf("expected %s in %s", want, data)
	}
}

