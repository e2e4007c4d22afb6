package datamanager

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashicorp-forge/datamanager/pkg/traverson"
)

// ErrNoMatchDueToFilter is returned when a single-item fetch matched
// nothing.
var ErrNoMatchDueToFilter = errors.New("ec_sdk_no_match_due_to_filter")

// ErrInvalidMethod is returned for schema methods other than get, put and
// post.
var ErrInvalidMethod = errors.New("invalid method")

// ErrNotAuthenticated is returned by operations that need a token when none
// is set.
var ErrNotAuthenticated = errors.New("no access token")

// ConfigError reports invalid client configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// APIError is a non-2xx response with the API's JSON error body.
type APIError struct {
	Status  int    `json:"status"`
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Detail  string `json:"detail"`
	Verbose string `json:"verbose"`

	Err *traverson.HTTPError `json:"-"`
}

func (e *APIError) Error() string {
	msg := e.Title
	if msg == "" {
		msg = e.Err.Error()
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Code != 0 {
		return fmt.Sprintf("data manager error %d (status %d): %s", e.Code, e.Status, msg)
	}
	return fmt.Sprintf("data manager error (status %d): %s", e.Status, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// newAPIError parses the body of herr. Bodies that are not JSON error
// documents keep only the status.
func newAPIError(herr *traverson.HTTPError) *APIError {
	apiErr := &APIError{}
	if err := json.Unmarshal(herr.Body, apiErr); err != nil {
		apiErr = &APIError{}
	}
	apiErr.Err = herr
	if apiErr.Status == 0 {
		apiErr.Status = herr.StatusCode
	}
	return apiErr
}

// fail converts transport errors, reports err to the error handler and
// returns it.
func (c *Client) fail(err error) error {
	if err == nil {
		return nil
	}
	var herr *traverson.HTTPError
	var apiErr *APIError
	if errors.As(err, &herr) && !errors.As(err, &apiErr) {
		err = newAPIError(herr)
	}
	if c.errorHandler != nil {
		c.errorHandler(err)
	}
	return err
}
