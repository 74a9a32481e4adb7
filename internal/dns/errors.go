package dns

import (
	"errors"
	"fmt"

	"go_subdns/internal/model"
)

var (
	// ErrRecordNotFound is returned when a record does not exist or belongs to another user
	ErrRecordNotFound = errors.New("dns record not found")

	// ErrDomainNotFound is returned when a domain does not exist or belongs to another user
	ErrDomainNotFound = errors.New("domain not found")

	// ErrJobNotFound is returned when a sync job does not exist
	ErrJobNotFound = errors.New("sync job not found")

	// ErrRecordConflict is returned when the name is already taken by a clashing record
	ErrRecordConflict = errors.New("dns record already exists")

	// ErrStateConflict is returned when a mutation is not allowed in the record's current status
	ErrStateConflict = errors.New("dns record state conflict")

	// ErrStateDiverged is returned by the dispatcher when local state no longer
	// matches what the job was created for. It is never retried.
	ErrStateDiverged = errors.New("local state diverged from job")

	// ErrOutOfScope is returned when a record name falls outside the domain apex
	ErrOutOfScope = errors.New("record name is outside the domain")
)

// ConflictError reports the record that already holds the requested name.
// RecordID is 0 when the clash was only detected by the unique index.
type ConflictError struct {
	RecordID int
	Type     model.DNSRecordType
	FQDN     string
	CNAME    bool
}

func (e *ConflictError) Error() string {
	if e.CNAME {
		return fmt.Sprintf("%s: CNAME at %s cannot coexist with other records", ErrRecordConflict, e.FQDN)
	}
	return fmt.Sprintf("%s: %s %s", ErrRecordConflict, e.Type, e.FQDN)
}

func (e *ConflictError) Unwrap() error {
	return ErrRecordConflict
}

// ValidationError describes a rejected mutation input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a validation failure, including scope rejection
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) || errors.Is(err, ErrOutOfScope)
}
