package httpx

import (
	"fmt"
	"math"
	"net/http"
	"time"
)

// Business codes carried in the response envelope. The thousands digit
// groups them: 1xxx auth, 2xxx request, 3xxx resource state, 4xxx
// throttling, 5xxx server.
const (
	CodeSuccess = 0

	CodeUnauthorized = 1001 // no bearer token
	CodeInvalidToken = 1002
	CodeTokenExpired = 1003

	CodeParamMissing = 2001
	CodeParamInvalid = 2002 // body or query does not bind
	CodeParamIllegal = 2003 // binds but fails record/claim validation

	CodeNotFound      = 3001
	CodeAlreadyExists = 3002 // name clash; data may carry the clashing id
	CodeStateConflict = 3003 // e.g. editing a record that is being deleted

	CodeRateLimited = 4290

	CodeInternalError = 5001
	CodeDatabaseError = 5002
)

// AppError is an error that knows how it is rendered: HTTP status, business
// code and a client-safe message. Err stays server side and is only logged.
type AppError struct {
	HTTPStatus int
	Code       int
	Message    string
	Err        error
	Data       any
	RetryAfter time.Duration
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code=%d, message=%s, err=%v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithData attaches a payload rendered as the envelope's data field
func (e *AppError) WithData(data any) *AppError {
	e.Data = data
	return e
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds
func (e *AppError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// NewAppError creates an AppError, falling back to fallback when message is empty
func NewAppError(httpStatus, code int, message, fallback string, err error) *AppError {
	if message == "" {
		message = fallback
	}
	return &AppError{HTTPStatus: httpStatus, Code: code, Message: message, Err: err}
}

func ErrUnauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, message, "unauthorized", nil)
}

func ErrInvalidToken(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeInvalidToken, message, "invalid token", nil)
}

func ErrTokenExpired(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeTokenExpired, message, "token expired", nil)
}

func ErrParamMissing(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeParamMissing, message, "parameter missing", nil)
}

func ErrParamInvalid(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeParamInvalid, message, "parameter format error", nil)
}

func ErrParamIllegal(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeParamIllegal, message, "parameter value illegal", nil)
}

func ErrNotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodeNotFound, message, "resource not found", nil)
}

func ErrAlreadyExists(message string) *AppError {
	return NewAppError(http.StatusConflict, CodeAlreadyExists, message, "resource already exists", nil)
}

func ErrStateConflict(message string) *AppError {
	return NewAppError(http.StatusConflict, CodeStateConflict, message, "current state does not allow operation", nil)
}

// ErrRateLimited creates a 429 error; retryAfter is sent as the Retry-After header
func ErrRateLimited(message string, retryAfter time.Duration) *AppError {
	e := NewAppError(http.StatusTooManyRequests, CodeRateLimited, message, "too many operations, try again later", nil)
	e.RetryAfter = retryAfter
	return e
}

func ErrInternalError(message string, err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, message, "internal error", err)
}

func ErrDatabaseError(message string, err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeDatabaseError, message, "database error", err)
}
