package model

import "fmt"

// DisplayState is one of the five mutually exclusive states the viewer
// hands to the rendering layer.
type DisplayState int

const (
	// DisplayChecking is shown while an inspection is still waiting on data.
	DisplayChecking DisplayState = iota

	// DisplayFullyProtected means both "noai" and "noimageai" were found.
	DisplayFullyProtected

	// DisplayPartiallyProtected means exactly one of the directives was found.
	DisplayPartiallyProtected

	// DisplayNotProtected means fresh data shows neither directive.
	DisplayNotProtected

	// DisplayUnavailable means the context cannot be inspected, either because
	// it is privileged or because no observer ever answered.
	DisplayUnavailable
)

// String returns the kebab-case name of the state.
func (s DisplayState) String() string {
	switch s {
	case DisplayChecking:
		return "checking"
	case DisplayFullyProtected:
		return "fully-protected"
	case DisplayPartiallyProtected:
		return "partially-protected"
	case DisplayNotProtected:
		return "not-protected"
	case DisplayUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s DisplayState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *DisplayState) UnmarshalText(text []byte) error {
	parsed, err := ParseDisplayState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseDisplayState converts a state name back into a DisplayState.
func ParseDisplayState(name string) (DisplayState, error) {
	for _, s := range AllDisplayStates() {
		if s.String() == name {
			return s, nil
		}
	}
	return DisplayUnavailable, fmt.Errorf("unknown display state %q", name)
}

// AllDisplayStates returns every display state in declaration order.
func AllDisplayStates() []DisplayState {
	return []DisplayState{
		DisplayChecking,
		DisplayFullyProtected,
		DisplayPartiallyProtected,
		DisplayNotProtected,
		DisplayUnavailable,
	}
}

// Protected reports whether the state shows at least one opt-out directive.
func (s DisplayState) Protected() bool {
	return s == DisplayFullyProtected || s == DisplayPartiallyProtected
}

// DisplayStateFor maps a record to its display state. The mapping is pure
// and total: every lifecycle/flag combination has exactly one answer.
func DisplayStateFor(r ProtectionRecord) DisplayState {
	switch r.Lifecycle {
	case LifecycleUnavailable:
		return DisplayUnavailable
	case LifecycleLoading:
		return DisplayChecking
	case LifecycleFresh, LifecycleStale:
		return flagsState(r.GeneralOptOut, r.ImageOptOut)
	default:
		return DisplayUnavailable
	}
}

func flagsState(general, image bool) DisplayState {
	switch {
	case general && image:
		return DisplayFullyProtected
	case general || image:
		return DisplayPartiallyProtected
	default:
		return DisplayNotProtected
	}
}

// Display is the sole input of the rendering layer.
type Display struct {
	// State is the display state to render.
	State DisplayState `json:"state"`

	// Restricted is true when the context was recognized as privileged
	// before any message was sent.
	Restricted bool `json:"restricted,omitempty"`

	// Record is the record the state was derived from, if any.
	Record *ProtectionRecord `json:"record,omitempty"`

	// URL is the context URL known to the viewer.
	URL string `json:"url,omitempty"`

	// Reason explains an unavailable state.
	Reason string `json:"reason,omitempty"`
}

// Copy holds the user-facing text for a display state.
type Copy struct {
	Title       string
	Subtitle    string
	Explanation string
}

var stateCopy = map[DisplayState]Copy{
	DisplayFullyProtected: {
		Title:       "Fully Protected",
		Subtitle:    "This site has comprehensive AI protection",
		Explanation: "This website includes both general AI and image AI protection tags, providing comprehensive protection against AI training usage.",
	},
	DisplayPartiallyProtected: {
		Title:       "Partially Protected",
		Subtitle:    "This site has some AI protection",
		Explanation: "This website has partial AI protection. Some types of AI training are restricted, but not all.",
	},
	DisplayNotProtected: {
		Title:       "Not Protected",
		Subtitle:    "No AI protection tags found",
		Explanation: "This website does not include AI protection tags. Content may be used for AI training purposes.",
	},
	DisplayChecking: {
		Title:       "Checking...",
		Subtitle:    "Scanning for AI protection tags",
		Explanation: "Please wait while the page is checked for AI protection tags.",
	},
	DisplayUnavailable: {
		Title:       "Unable to Check",
		Subtitle:    "This page cannot be analyzed",
		Explanation: "This page cannot be checked for AI protection tags. It may be a special browser page or restricted content. Reloading the page may fix it.",
	},
}

var restrictedCopy = Copy{
	Title:       "Restricted Page",
	Subtitle:    "Cannot analyze this page",
	Explanation: "Special browser pages such as settings, new tab, local files or other extensions cannot be analyzed.",
}

// CopyFor returns the user-facing text for d.
func CopyFor(d Display) Copy {
	if d.State == DisplayUnavailable && d.Restricted {
		return restrictedCopy
	}
	return stateCopy[d.State]
}

// Directive names recognized in robots meta tags.
const (
	DirectiveNoAI      = "noai"
	DirectiveNoImageAI = "noimageai"
)

// DirectiveExplanations describes what each opt-out directive asks for.
var DirectiveExplanations = map[string]string{
	DirectiveNoAI:      "Requests that AI systems do not use this content for training purposes",
	DirectiveNoImageAI: "Specifically requests that AI systems do not use images from this site for training",
}
