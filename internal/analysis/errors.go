package analysis

import (
	"errors"
	"fmt"
)

// ErrTransport matches a ServiceError for which no usable response arrived.
var ErrTransport = errors.New("analysis service unreachable")

const networkErrorMessage = "Network error. Please check your connection."

// ServiceError is returned for transport failures (StatusCode 0) and non-2xx
// responses. Body holds the structured error payload when the service sent one.
type ServiceError struct {
	StatusCode int
	Message    string
	Body       map[string]any
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransport) true for status-0 failures.
func (e *ServiceError) Is(target error) bool {
	return target == ErrTransport && e.StatusCode == 0
}

// Transport reports whether the request never produced a usable response.
func (e *ServiceError) Transport() bool { return e.StatusCode == 0 }

func transportError(err error) *ServiceError {
	return &ServiceError{Message: networkErrorMessage, Err: err}
}
