package webhook

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotConfigured reports that no webhook endpoint was supplied.
var ErrNotConfigured = errors.New("chatbot webhook URL not configured")

// TransportError wraps a failure to obtain any response from the endpoint.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("webhook transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError reports a non-2xx reply. The body is not inspected.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// ParseError wraps a 2xx reply whose body is not valid JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("webhook reply parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Kind labels err for logs and telemetry.
func Kind(err error) string {
	var (
		transportErr *TransportError
		httpErr      *HTTPError
		parseErr     *ParseError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConfigured):
		return "configuration"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &httpErr):
		return "http"
	case errors.As(err, &parseErr):
		return "parse"
	default:
		return "unknown"
	}
}
