package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error kinds reported to API callers.
const (
	KindTransport        = "transport_error"
	KindUnexpectedStatus = "unexpected_status"
	KindSchemaMismatch   = "schema_mismatch"
	KindArchive          = "archive_error"
	KindMalformedValue   = "malformed_value"
	KindInvariant        = "invariant_violation"
	KindCanceled         = "canceled"
	KindInternal         = "internal_error"
)

// TransportError means every attempt for one month failed before a usable
// response arrived (connection refused, timeout, truncated body).
type TransportError struct {
	Month    MonthKey
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: transport failure after %d attempts: %v", e.Month, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UnexpectedStatusError means every attempt for one month got a status
// other than 200 or 404.
type UnexpectedStatusError struct {
	Month      MonthKey
	Attempts   int
	StatusCode int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d after %d attempts", e.Month, e.StatusCode, e.Attempts)
}

// SchemaMismatchError means a month's table lacks canonical source columns.
type SchemaMismatchError struct {
	Month   MonthKey
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch in %s: missing columns %s", e.Month, strings.Join(e.Missing, ", "))
}

// ArchiveError means the downloaded bytes could not be opened as the
// expected archive or the tabular entry inside it could not be parsed.
type ArchiveError struct {
	Month MonthKey
	Err   error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Month, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// MalformedValueError means a source cell could not be converted to its
// canonical type.
type MalformedValueError struct {
	Month  MonthKey
	Row    int
	Column string
	Value  string
}

func (e *MalformedValueError) Error() string {
	return fmt.Sprintf("malformed %s %q at %s row %d", e.Column, e.Value, e.Month, e.Row)
}

func (e *MalformedValueError) Unwrap() error { return ErrInvalidAmount }

// ErrorKind classifies any error returned by the load pipeline.
func ErrorKind(err error) string {
	var (
		te *TransportError
		se *UnexpectedStatusError
		sm *SchemaMismatchError
		ae *ArchiveError
		mv *MalformedValueError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &te):
		return KindTransport
	case errors.As(err, &se):
		return KindUnexpectedStatus
	case errors.As(err, &sm):
		return KindSchemaMismatch
	case errors.As(err, &ae):
		return KindArchive
	case errors.As(err, &mv):
		return KindMalformedValue
	case errors.Is(err, ErrInvariant):
		return KindInvariant
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindInternal
}
