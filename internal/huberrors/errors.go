// Package huberrors provides sentinel and custom error types for the application.
package huberrors

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// StoreOp names the kind of store access that failed.
type StoreOp string

// Store operations.
const (
	StoreOpRead  StoreOp = "read"
	StoreOpWrite StoreOp = "write"
)

// ErrStore matches any StoreError regardless of operation.
var ErrStore = &StoreError{}

// ErrStoreRead matches StoreErrors raised while reading.
var ErrStoreRead = &StoreError{Op: StoreOpRead}

// ErrStoreWrite matches StoreErrors raised while writing.
var ErrStoreWrite = &StoreError{Op: StoreOpWrite}

// StoreError reports a failed record-store access. It is never retried and
// must reach the caller as a failure, not as an empty result.
type StoreError struct {
	Op  StoreOp
	Err error
}

// NewStoreReadError wraps err as a read failure.
func NewStoreReadError(err error) *StoreError {
	return &StoreError{Op: StoreOpRead, Err: err}
}

// NewStoreWriteError wraps err as a write failure.
func NewStoreWriteError(err error) *StoreError {
	return &StoreError{Op: StoreOpWrite, Err: err}
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := "store error"
	if e.Op != "" {
		msg = "store " + string(e.Op) + " error"
	}

	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying driver error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is matches another StoreError. A target without Op matches every operation.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}

	return t.Op == "" || t.Op == e.Op
}

// ErrOracle matches any OracleError.
var ErrOracle = &OracleError{}

// OracleError reports a failed text-completion call: transport failure, timeout,
// or a response without a usable completion.
type OracleError struct {
	Provider string
	Message  string
	Err      error
}

// NewOracleError creates an OracleError for provider.
func NewOracleError(provider, message string, err error) *OracleError {
	return &OracleError{
		Provider: provider,
		Message:  message,
		Err:      err,
	}
}

// Error implements the error interface.
func (e *OracleError) Error() string {
	msg := "oracle error"
	if e.Provider != "" {
		msg = e.Provider + " oracle error"
	}

	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *OracleError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison.
func (e *OracleError) Is(target error) bool {
	_, ok := target.(*OracleError)

	return ok
}
