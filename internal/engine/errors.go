package engine

import (
	"errors"
	"fmt"
)

// RunError is a failure of the run as a whole, as opposed to a failure of
// one implementation on one case (which is recorded as a result instead).
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// RunErrorCode categorizes run errors. The CLI maps each to an exit status.
type RunErrorCode string

const (
	// ErrCodeConfig means the run was misconfigured or could not meaningfully
	// proceed: conflicting options, no implementation started, every
	// implementation backing off.
	ErrCodeConfig RunErrorCode = "CONFIG"

	// ErrCodeNoInput means no case was dispatched.
	ErrCodeNoInput RunErrorCode = "NO_INPUT"

	// ErrCodeData means the input itself was malformed.
	ErrCodeData RunErrorCode = "DATA"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a CONFIG-class RunError.
func NewConfigError(message string, err error) *RunError {
	return &RunError{Code: ErrCodeConfig, Message: message, Err: err}
}

// NewDataError creates a DATA-class RunError.
func NewDataError(message string, err error) *RunError {
	return &RunError{Code: ErrCodeData, Message: message, Err: err}
}

// ErrNoInput is the cause attached to NO_INPUT errors.
var ErrNoInput = errors.New("no test cases ran")

// IsConfigError reports whether err is a CONFIG-class RunError.
func IsConfigError(err error) bool {
	return hasCode(err, ErrCodeConfig)
}

// IsNoInput reports whether err is a NO_INPUT RunError.
func IsNoInput(err error) bool {
	return hasCode(err, ErrCodeNoInput)
}

// IsDataError reports whether err is a DATA-class RunError.
func IsDataError(err error) bool {
	return hasCode(err, ErrCodeData)
}

func hasCode(err error, code RunErrorCode) bool {
	var re *RunError
	return errors.As(err, &re) && re.Code == code
}
