package cache

import (
	"errors"
	"fmt"
)

// ErrNotEnabled is returned by operations on a collection whose cache was
// never enabled.
var ErrNotEnabled = errors.New("cache not enabled")

// OfflineError is returned when the network is unreachable and there is no
// cached data to fall back on.
type OfflineError struct {
	Model string
	Err   error
}

func (e *OfflineError) Error() string {
	return fmt.Sprintf("network unreachable and no cached data for model %q: %v", e.Model, e.Err)
}

func (e *OfflineError) Unwrap() error {
	return e.Err
}
