package config

import "errors"

// Configuration validation errors returned by Config.Validate and the
// config file loader. Callers match them with errors.Is.
var (
	// ErrNoTarget is returned when no URL is given.
	ErrNoTarget = errors.New("no target specified: provide at least one URL")

	// ErrInvalidTarget is returned for a URL that cannot be parsed or has
	// no scheme.
	ErrInvalidTarget = errors.New("invalid target URL")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidDelay is returned when a delay or debounce window is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidRetries is returned when the retry count is negative.
	ErrInvalidRetries = errors.New("invalid retry count: must be non-negative")

	// ErrInvalidRateLimit is returned when the rate limit is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidDuration is returned when the config file holds a duration
	// that time.ParseDuration rejects.
	ErrInvalidDuration = errors.New("invalid duration in config file")
)
