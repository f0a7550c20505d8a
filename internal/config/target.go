package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateTarget checks that target is an absolute URL. Restricted schemes
// such as chrome:// are accepted; they are reported as restricted later.
func ValidateTarget(target string) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidTarget, target, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("%w: %q has no scheme", ErrInvalidTarget, target)
	}
	return nil
}

// NormalizeTarget adds https:// to targets given without a scheme. Only a
// colon before the first '/', '?' or '#' can end a scheme, and a colon
// followed by a digit is read as a port.
func NormalizeTarget(target string) string {
	t := strings.TrimSpace(target)
	if t == "" {
		return t
	}
	head := t
	if i := strings.IndexAny(t, "/?#"); i >= 0 {
		head = t[:i]
	}
	if i := strings.Index(head, ":"); i >= 0 {
		rest := t[i+1:]
		if rest == "" || rest[0] < '0' || rest[0] > '9' {
			return t
		}
	}
	return "https://" + t
}
