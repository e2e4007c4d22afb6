package traverson

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnsupportedMediaType is returned when a response (or a forced media
// type) has no adapter.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// ErrAborted is wrapped by every AbortError.
var ErrAborted = errors.New("traversal aborted")

// HTTPError is returned for responses outside the 2xx range.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s",
		e.Method, e.URL, e.StatusCode, truncate(string(e.Body), 512))
}

// JSONError is returned when a response body is not valid JSON.
type JSONError struct {
	URL  string
	Body []byte
	Err  error
}

func (e *JSONError) Error() string {
	return fmt.Sprintf("response from %s is not valid JSON: %v", e.URL, e.Err)
}

func (e *JSONError) Unwrap() error {
	return e.Err
}

// AbortError is delivered when a traversal is aborted or times out.
type AbortError struct {
	Timeout bool

	// Cause is the context error that triggered the abort, if any.
	Cause error
}

func (e *AbortError) Error() string {
	if e.Timeout {
		return "traversal aborted: timeout exceeded"
	}
	if e.Cause != nil {
		return fmt.Sprintf("traversal aborted: %v", e.Cause)
	}
	return "traversal aborted"
}

func (e *AbortError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrAborted, e.Cause}
	}
	return []error{ErrAborted}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
