package models

import "fmt"

// AuthError means the remote service rejected the credentials or the
// access token. Fatal to the run, never retried.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// APIError means the remote service answered, but not in the shape or with
// the result code we expect. Not retried: it signals contract drift, not a
// transient fault.
type APIError struct {
	Code       string // COROS result code, if one was present
	HTTPStatus int    // HTTP status, if the failure was at the HTTP layer
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("api error (code %s): %s", e.Code, e.Message)
	case e.HTTPStatus != 0:
		return fmt.Sprintf("api error (http %d): %s", e.HTTPStatus, e.Message)
	default:
		return fmt.Sprintf("api error: %s", e.Message)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// NetworkError wraps a transport level failure: connection refused,
// timeout, or an exhausted retry budget. Retryable on the next run.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FSError wraps a local filesystem failure while writing an artifact or
// the state file.
type FSError struct {
	Path string
	Err  error
}

func (e *FSError) Error() string {
	return fmt.Sprintf("filesystem error at %s: %v", e.Path, e.Err)
}

func (e *FSError) Unwrap() error { return e.Err }
