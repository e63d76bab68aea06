package remote

import (
	"errors"
	"fmt"
	"time"
)

const (
	retryableErrorMessageTemplateConstant = "retryable remote failure: %s"
	fatalErrorMessageTemplateConstant     = "fatal remote failure: %s"
	notFoundMessageConstant               = "remote resource not found"
)

// ErrNotFound reports that the requested remote resource does not exist.
var ErrNotFound = errors.New(notFoundMessageConstant)

// RetryableError marks a transient remote failure that a retry policy may reattempt.
type RetryableError struct {
	Cause      error
	RetryAfter time.Duration
}

// Error describes the transient failure.
func (retryableError RetryableError) Error() string {
	return fmt.Sprintf(retryableErrorMessageTemplateConstant, retryableError.Cause)
}

// Unwrap exposes the underlying cause.
func (retryableError RetryableError) Unwrap() error {
	return retryableError.Cause
}

// FatalError marks a permanent remote failure that must not be retried.
type FatalError struct {
	Cause error
}

// Error describes the permanent failure.
func (fatalError FatalError) Error() string {
	return fmt.Sprintf(fatalErrorMessageTemplateConstant, fatalError.Cause)
}

// Unwrap exposes the underlying cause.
func (fatalError FatalError) Unwrap() error {
	return fatalError.Cause
}

// IsRetryable reports whether the provided error carries a RetryableError classification.
func IsRetryable(candidateError error) bool {
	var retryableError RetryableError
	return errors.As(candidateError, &retryableError)
}

// IsFatal reports whether the provided error carries a FatalError classification.
func IsFatal(candidateError error) bool {
	var fatalError FatalError
	return errors.As(candidateError, &fatalError)
}

// RetryAfterHint extracts a server-supplied retry delay when the error carries one.
func RetryAfterHint(candidateError error) (time.Duration, bool) {
	var retryableError RetryableError
	if !errors.As(candidateError, &retryableError) {
		return 0, false
	}
	if retryableError.RetryAfter <= 0 {
		return 0, false
	}
	return retryableError.RetryAfter, true
}
