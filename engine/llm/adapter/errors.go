package llmadapter

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes
const (
	ErrCodeRateLimit     = "rate_limited"
	ErrCodeUnavailable   = "unavailable"
	ErrCodeTimeout       = "timeout"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeQuotaExceeded = "quota_exceeded"
	ErrCodeMalformed     = "malformed"
	ErrCodeRefused       = "refused"
)

// Error is a classified provider failure.
type Error struct {
	Code       string
	StatusCode int
	Message    string
	Provider   string
	// RetryAfter is the server requested delay, zero when absent.
	RetryAfter time.Duration
	Err        error
}

// NewError classifies an HTTP status code.
func NewError(statusCode int, message, provider string, err error) *Error {
	return &Error{
		Code:       codeForStatus(statusCode),
		StatusCode: statusCode,
		Message:    message,
		Provider:   provider,
		Err:        err,
	}
}

// NewErrorWithCode creates an error with an explicit code.
func NewErrorWithCode(code, message, provider string, err error) *Error {
	return &Error{Code: code, Message: message, Provider: provider, Err: err}
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrCodeUnauthorized
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case status >= 500:
		return ErrCodeUnavailable
	default:
		return ErrCodeBadRequest
	}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Provider != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Provider)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [status %d]", msg, e.StatusCode)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	switch e.Code {
	case ErrCodeRateLimit, ErrCodeUnavailable, ErrCodeTimeout:
		return true
	}
	return false
}

// InvalidOutput reports whether the model answered but the answer is
// unusable, which is corrected by asking again rather than by backing off.
func (e *Error) InvalidOutput() bool {
	return e.Code == ErrCodeMalformed || e.Code == ErrCodeRefused
}

// AsError unwraps err into an *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
