package generation

import "errors"

// Common errors returned by generation service clients
var (
	// ErrSubmitFailed is returned when the service rejects a submission for a
	// reason that will not resolve on retry
	ErrSubmitFailed = errors.New("generation service rejected the submission")

	// ErrInvalidResponse is returned when a service response cannot be parsed
	// or is missing fields the protocol requires
	ErrInvalidResponse = errors.New("invalid response from generation service")

	// ErrTaskFailed is returned when the service reports a task as
	// terminally failed
	ErrTaskFailed = errors.New("generation service reported task failure")

	// ErrTransientFailure is returned for temporary errors (rate limits,
	// upstream internal errors) that might resolve on retry
	ErrTransientFailure = errors.New("transient error from generation service")

	// ErrInvalidConfig is returned when a client configuration is invalid
	ErrInvalidConfig = errors.New("invalid generation client configuration")
)
