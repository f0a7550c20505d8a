package model

import (
	"fmt"
	"time"
)

// LifecycleFlag describes how trustworthy a ProtectionRecord is.
type LifecycleFlag int

const (
	// LifecycleUnavailable means no scan has ever succeeded for the context:
	// the context is inaccessible or its observer has not responded.
	LifecycleUnavailable LifecycleFlag = iota

	// LifecycleFresh is set after a completed scan.
	LifecycleFresh

	// LifecycleLoading is set while a context is navigating. Both opt-out
	// flags are false in this state so stale results are never shown.
	LifecycleLoading

	// LifecycleStale marks a fresh record that has outlived the store's
	// freshness window. Its flags are still the best available data.
	LifecycleStale
)

// String returns the lowercase name of the flag.
func (f LifecycleFlag) String() string {
	switch f {
	case LifecycleUnavailable:
		return "unavailable"
	case LifecycleFresh:
		return "fresh"
	case LifecycleLoading:
		return "loading"
	case LifecycleStale:
		return "stale"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so the flag is written by name.
func (f LifecycleFlag) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *LifecycleFlag) UnmarshalText(text []byte) error {
	parsed, err := ParseLifecycleFlag(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseLifecycleFlag converts a flag name back into a LifecycleFlag.
func ParseLifecycleFlag(s string) (LifecycleFlag, error) {
	switch s {
	case "unavailable":
		return LifecycleUnavailable, nil
	case "fresh":
		return LifecycleFresh, nil
	case "loading":
		return LifecycleLoading, nil
	case "stale":
		return LifecycleStale, nil
	default:
		return LifecycleUnavailable, fmt.Errorf("unknown lifecycle flag %q", s)
	}
}

// ScanResult is the value produced by one observer scan of a page.
// It is never persisted by the observer.
type ScanResult struct {
	// GeneralOptOut is true when any robots meta tag carries "noai".
	GeneralOptOut bool `json:"general_opt_out"`

	// ImageOptOut is true when any robots meta tag carries "noimageai".
	ImageOptOut bool `json:"image_opt_out"`

	// SourceURL is the URL of the scanned page.
	SourceURL string `json:"source_url,omitempty"`

	// CapturedAt is when the scan ran.
	CapturedAt time.Time `json:"captured_at"`
}

// ProtectionRecord is the store's last-known protection status of one context.
//
// Records are immutable values: the store replaces them wholesale and never
// patches individual fields. Use NewRecord (or one of the helpers below) to
// build one so that CombinedProtection is always derived from the two flags.
type ProtectionRecord struct {
	// ContextID is the context this record describes.
	ContextID ContextID `json:"context_id"`

	// GeneralOptOut is the raw "noai" scan result.
	GeneralOptOut bool `json:"general_opt_out"`

	// ImageOptOut is the raw "noimageai" scan result.
	ImageOptOut bool `json:"image_opt_out"`

	// CombinedProtection is GeneralOptOut || ImageOptOut.
	CombinedProtection bool `json:"combined_protection"`

	// SourceURL is the URL the record was captured from. Empty when unknown.
	SourceURL string `json:"source_url,omitempty"`

	// CapturedAt is when the underlying data was produced.
	CapturedAt time.Time `json:"captured_at"`

	// Lifecycle tells how far the record can be trusted.
	Lifecycle LifecycleFlag `json:"lifecycle"`
}

// NewRecord builds a record for id from a scan result.
func NewRecord(id ContextID, result ScanResult, flag LifecycleFlag) ProtectionRecord {
	return ProtectionRecord{
		ContextID:          id,
		GeneralOptOut:      result.GeneralOptOut,
		ImageOptOut:        result.ImageOptOut,
		CombinedProtection: result.GeneralOptOut || result.ImageOptOut,
		SourceURL:          result.SourceURL,
		CapturedAt:         result.CapturedAt,
		Lifecycle:          flag,
	}
}

// FreshRecord builds a fresh record from a completed scan.
func FreshRecord(id ContextID, result ScanResult) ProtectionRecord {
	return NewRecord(id, result, LifecycleFresh)
}

// LoadingRecord builds the record shown while a context navigates.
// Both opt-out flags are reset to false.
func LoadingRecord(id ContextID, url string, at time.Time) ProtectionRecord {
	return NewRecord(id, ScanResult{SourceURL: url, CapturedAt: at}, LifecycleLoading)
}

// UnavailableRecord builds the record synthesized when no observer answered.
func UnavailableRecord(id ContextID, at time.Time) ProtectionRecord {
	return NewRecord(id, ScanResult{CapturedAt: at}, LifecycleUnavailable)
}

// WithLifecycle returns a copy of r with a different lifecycle flag.
func (r ProtectionRecord) WithLifecycle(flag LifecycleFlag) ProtectionRecord {
	return NewRecord(r.ContextID, r.ScanResult(), flag)
}

// ScanResult returns the scan data the record was built from.
func (r ProtectionRecord) ScanResult() ScanResult {
	return ScanResult{
		GeneralOptOut: r.GeneralOptOut,
		ImageOptOut:   r.ImageOptOut,
		SourceURL:     r.SourceURL,
		CapturedAt:    r.CapturedAt,
	}
}

// IsFresh reports whether the record came from a completed scan and has not
// gone stale.
func (r ProtectionRecord) IsFresh() bool {
	return r.Lifecycle == LifecycleFresh
}

// Consistent reports whether CombinedProtection matches the two opt-out flags.
func (r ProtectionRecord) Consistent() bool {
	return r.CombinedProtection == (r.GeneralOptOut || r.ImageOptOut)
}
