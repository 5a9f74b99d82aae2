package watch

import (
	"errors"
	"fmt"
)

var (
	// ErrVerificationTimeout is attached to a committed_unverified update:
	// the service reported completion but the payload was never confirmed.
	ErrVerificationTimeout = errors.New("result payload not confirmed within verification attempts")

	// ErrNotFoundAfterRetries means every load attempt was rejected by the
	// service.
	ErrNotFoundAfterRetries = errors.New("analysis not found after retries")

	// ErrStillProcessing means the job was still running when the load budget
	// ran out.
	ErrStillProcessing = errors.New("analysis still processing after retries")

	// ErrUnexpectedStatus means the job never reached complete with a payload.
	ErrUnexpectedStatus = errors.New("analysis did not complete after retries")
)

const defaultFailureMessage = "Analysis failed. Please try again."

// JobFailedError reports a job the service marked as failed.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	return e.Message
}

func newJobFailedError(jobID, msg string) *JobFailedError {
	if msg == "" {
		msg = defaultFailureMessage
	}
	return &JobFailedError{JobID: jobID, Message: msg}
}

// LoadError is returned by Loader.Load once its attempt budget is spent.
// Category is the classification of the final attempt.
type LoadError struct {
	JobID    string
	Category Category
	Attempts int
	Status   string
	Err      error
}

func (e *LoadError) Error() string {
	switch e.Category {
	case CategoryServiceRejected:
		return "Analysis not found after multiple attempts"
	case CategoryStillProcessing:
		return "Analysis is still processing. Please refresh the page."
	case CategoryOtherNonComplete:
		status := e.Status
		if status == "" {
			status = "unknown"
		}
		return fmt.Sprintf("Analysis status: %s. Please try refreshing.", status)
	default:
		if e.Err != nil && e.Err.Error() != "" {
			return e.Err.Error()
		}
		return "Failed to load analysis"
	}
}

func (e *LoadError) Unwrap() error {
	switch e.Category {
	case CategoryServiceRejected:
		return ErrNotFoundAfterRetries
	case CategoryStillProcessing:
		return ErrStillProcessing
	case CategoryOtherNonComplete:
		return ErrUnexpectedStatus
	default:
		return e.Err
	}
}
