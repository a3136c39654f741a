package amplitude

import "errors"

var (
	// ErrNotInitialized is returned (or delivered) when an operation runs
	// before a successful Initialize.
	ErrNotInitialized = errors.New("amplitude experiment bridge not initialized")
	// ErrInvalidInput reports malformed caller input, such as an empty API key
	// or user properties that are not a JSON object.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNetworkFailure wraps errors returned by the Amplitude client while fetching.
	ErrNetworkFailure = errors.New("fetch failed")
	// ErrClosed is delivered for fetches issued after Close.
	ErrClosed = errors.New("amplitude experiment bridge closed")
)
