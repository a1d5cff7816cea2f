package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNoActiveEnrolment  = errors.New("no active enrolment")
	ErrDuplicateEmail     = errors.New("email belongs to another profile")
	ErrFingerprintClaimed = errors.New("fingerprint already claimed")
	ErrInvalidFileFormat  = errors.New("invalid file format")
	ErrSchemaValidation   = errors.New("schema validation failed")
	ErrUploadNotFound     = errors.New("upload not found")
	ErrEntryNotFound      = errors.New("audit entry not found")
	ErrRunNotFound        = errors.New("run not found")
	ErrRunLocked          = errors.New("another run holds the cycle lock")
	ErrFeedUnavailable    = errors.New("feed unavailable")
)

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

type RetryableError struct {
	Err     error
	Message string
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s - %s", e.Message, e.Err.Error())
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error, message string) error {
	return RetryableError{
		Err:     err,
		Message: message,
	}
}
