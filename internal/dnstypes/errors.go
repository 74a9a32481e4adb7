package dnstypes

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed provider call
type ErrorKind string

const (
	// ErrorKindNetwork means the request never produced a provider response
	ErrorKindNetwork ErrorKind = "network"
	// ErrorKindRejected means the provider answered with an API error
	ErrorKindRejected ErrorKind = "rejected"
	// ErrorKindNotFound means the addressed record (or id) does not exist
	ErrorKindNotFound ErrorKind = "not_found"
	// ErrorKindOther covers 5xx, malformed bodies and anything unrecognised
	ErrorKindOther ErrorKind = "other"
)

// ProviderError is the only error type the provider adapter returns
type ProviderError struct {
	Kind    ErrorKind `json:"kind"`
	Code    int       `json:"code,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider %s error [%d]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("provider %s error: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a ProviderError wrapping err
func NewProviderError(kind ErrorKind, code int, message string, err error) *ProviderError {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &ProviderError{Kind: kind, Code: code, Message: message, Err: err}
}

// AsProviderError extracts a ProviderError from an error chain
func AsProviderError(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// IsNotFound reports whether err is a provider not-found error
func IsNotFound(err error) bool {
	perr, ok := AsProviderError(err)
	return ok && perr.Kind == ErrorKindNotFound
}
