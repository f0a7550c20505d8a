package model

import "time"

// InspectionReport is the outcome of inspecting one URL end to end:
// open the page, wait for it, ask the viewer, optionally refresh.
type InspectionReport struct {
	// URL is the address that was requested.
	URL string `json:"url"`

	// SessionID identifies the browser session that ran the inspection.
	SessionID string `json:"session_id,omitempty"`

	// ContextID is the context the page was loaded in.
	ContextID ContextID `json:"context_id"`

	// Display is the final display handed to the rendering layer.
	Display Display `json:"display"`

	// Badge is the badge text shown for the context when the inspection
	// finished. Empty when no badge was rendered.
	Badge string `json:"badge,omitempty"`

	// Refreshed is true when the final display came from a forced refresh.
	Refreshed bool `json:"refreshed,omitempty"`

	// StartedAt is when the inspection began.
	StartedAt time.Time `json:"started_at"`

	// Elapsed is how long the inspection took.
	Elapsed time.Duration `json:"elapsed"`

	// PerformedSteps lists the pipeline steps that ran.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Error is the last step error, if any.
	Error error `json:"-"`

	// ErrorMessage is Error rendered as text for serialization.
	ErrorMessage string `json:"error,omitempty"`
}

// NewInspectionReport creates an empty report for url.
func NewInspectionReport(url string) *InspectionReport {
	return &InspectionReport{
		URL:       url,
		StartedAt: time.Now(),
		Display:   Display{State: DisplayChecking, URL: url},
	}
}

// State is a shorthand for r.Display.State.
func (r *InspectionReport) State() DisplayState {
	return r.Display.State
}

// Summary counts inspections per display state.
type Summary struct {
	Counts map[DisplayState]int `json:"counts"`
	Total  int                  `json:"total"`
}

// Summarize counts the display states of reports. Nil reports are skipped.
func Summarize(reports []*InspectionReport) Summary {
	s := Summary{Counts: make(map[DisplayState]int)}
	for _, r := range reports {
		if r == nil {
			continue
		}
		s.Counts[r.State()]++
		s.Total++
	}
	return s
}
