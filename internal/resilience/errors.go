package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry: connection or session
// lifecycle faults, timeouts, 429s, 5xx responses. Adapters classify external
// failures into this type at the boundary so callers never match on message
// strings to decide retryability.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// AuthError wraps an authentication or authorization failure (401/403, bad
// API key). Auth errors are terminal immediately: retrying cannot fix them
// and they must be reported distinctly from other terminal failures.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError wraps an error as an authentication failure.
func NewAuthError(err error) *AuthError {
	return &AuthError{Err: err}
}

// IsAuth returns true if the error chain contains an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient network fault patterns
// (timeouts, connection resets, DNS failures, closed sessions).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Auth failures are terminal no matter how they are wrapped.
	if IsAuth(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from client libraries that
	// surface connection-lifecycle faults as plain errors.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"session is closed",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// IsAuthHTTPStatus returns true if the HTTP status code indicates an
// authentication or authorization failure.
func IsAuthHTTPStatus(statusCode int) bool {
	return statusCode == 401 || statusCode == 403
}
