package services

import (
	"errors"
	"fmt"
	"time"
)

// ConfigurationError means the requested conversion is not in the catalog.
// It aborts a run before anything is submitted.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// SubmissionError means the remote service rejected or never received one item.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// RemoteError means the remote job reported failure, or its status could not
// be read.
type RemoteError struct {
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote job failed: %s: %v", e.Message, e.Err)
	}
	return "remote job failed: " + e.Message
}

func (e *RemoteError) Unwrap() error { return e.Err }

// ErrTimeout is matched by every TimeoutError.
var ErrTimeout = errors.New("conversion timed out")

// TimeoutError means the job gave no terminal status within the poll bound.
type TimeoutError struct {
	JobID   string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("conversion timed out after %s (job %s)", e.Elapsed.Round(time.Second), e.JobID)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
