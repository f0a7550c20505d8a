// Package log provides the slog handler used by protectmyart.
//
// SecureHandler wraps any slog.Handler and masks sensitive data before it
// reaches the output:
//   - attributes whose key names a credential (cookie, authorization,
//     token, password, session ...)
//   - string values that look like credentials (bearer and basic auth
//     headers, JWTs, long API keys)
//   - credentials embedded in URLs: the password of the user info part and
//     the values of sensitive query parameters
//
// Page URLs are logged at almost every step of an inspection, so the URL
// rule is the one that fires most often: "https://a.example/?token=abc"
// is logged as "https://a.example/?token=***REDACTED***".
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
package log
