package ingest

import (
	"errors"
	"fmt"
)

// Code categorizes request-time ingestion errors. These are recovered
// per request and never fatal to the process.
type Code string

const (
	// CodeNotFound indicates an unknown application or a table the
	// application is not authorized to write into.
	CodeNotFound Code = "NOT_FOUND"

	// CodeForbidden indicates a secret key mismatch.
	CodeForbidden Code = "FORBIDDEN"

	// CodeBadRequest indicates a malformed record: missing or
	// non-string discriminator, or a value conversion failure.
	CodeBadRequest Code = "BAD_REQUEST"

	// CodeInternal indicates an infrastructure failure: connection,
	// transaction, statement execution, or commit.
	CodeInternal Code = "INTERNAL"
)

// Error is the caller-visible outcome of a failed ingestion. Message
// is safe to return to the client; the underlying cause of internal
// errors stays in Err for the operator-facing log.
type Error struct {
	Code    Code
	Message string
	AppID   string
	Table   string
	Column  string
	Err     error
}

func (e *Error) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s: %s (column=%s)", e.Code, e.Message, e.Column)
	}
	if e.Table != "" {
		return fmt.Sprintf("%s: %s (table=%s)", e.Code, e.Message, e.Table)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the error code, defaulting to CodeInternal for
// anything that is not an ingest error.
func CodeOf(err error) Code {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code
	}
	return CodeInternal
}

// IsNotFound reports whether err is a not-found ingestion error.
func IsNotFound(err error) bool {
	return is(err, CodeNotFound)
}

// IsForbidden reports whether err is a forbidden ingestion error.
func IsForbidden(err error) bool {
	return is(err, CodeForbidden)
}

// IsBadRequest reports whether err is a bad-request ingestion error.
func IsBadRequest(err error) bool {
	return is(err, CodeBadRequest)
}

func is(err error, code Code) bool {
	var ie *Error
	return errors.As(err, &ie) && ie.Code == code
}
