package fetch

import "errors"

var (
	// ErrInvalidProxyAddress is returned when the proxy address is not in
	// "host:port" form.
	ErrInvalidProxyAddress = errors.New("invalid proxy address: expected host:port")

	// ErrUnsupportedScheme is returned for URLs that are not http or https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrHTTPStatus is returned for responses outside the 2xx range.
	ErrHTTPStatus = errors.New("unexpected HTTP status")

	// ErrNotHTML is returned by Load when the response is not an HTML page.
	ErrNotHTML = errors.New("response is not HTML")
)
