package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeValidation   = "validation_error"
	ErrCodePersistence  = "persistence_error"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeDisconnected = "disconnected"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrPersistence  = errors.New("persist message")
	ErrUnauthorized = errors.New("identity mismatch")
	ErrDisconnected = errors.New("connection closed")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code, msg string, err error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: err}
}

// AsCoreError extracts a CoreError from err, or wraps err as a bad request.
func AsCoreError(err error) *CoreError {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, ErrDisconnected):
		return coreError(ErrCodeDisconnected, err.Error(), err)
	case errors.Is(err, ErrUnauthorized):
		return coreError(ErrCodeUnauthorized, err.Error(), err)
	}
	return coreError(ErrCodeBadRequest, err.Error(), err)
}
