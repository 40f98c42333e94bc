package httpapi

import "fmt"

// PermanentError indicates an error that should not be retried.
type PermanentError struct {
	Service string
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s error %d: %s", e.Service, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Service, e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary error that can be retried.
type RetryableError struct {
	Service string
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s error %d: %s", e.Service, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Service, e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }
