package settlement

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Sentinel validation errors. Events failing these are rejected outright and
// never retried: the payload itself is wrong.
var (
	ErrInvalidAmount       = errors.New("amount outside configured bounds")
	ErrMissingMetadata     = errors.New("required metadata missing from event")
	ErrMalformedIdentifier = errors.New("metadata identifier is not a valid id")
)

// NotFoundError names which referenced entity was missing, plus the gateway
// event for operational tracing. Structurally wrong data: no retry.
type NotFoundError struct {
	Entity  string
	ID      string
	EventID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found while processing event %s", e.Entity, e.ID, e.EventID)
}

// ConflictError marks work already done (duplicate enrollment, duplicate
// gateway reference). Resolved by idempotent skip, never surfaced as failure.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// TransientError wraps storage-level contention worth retrying with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{
		"deadlock",
		"could not serialize",
		"lock timeout",
		"database is locked",
		"connection reset",
		"connection refused",
		"i/o timeout",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// IsDuplicateKey reports a unique-constraint violation, the storage-level
// backstop behind the enrollment idempotency guard.
func IsDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
