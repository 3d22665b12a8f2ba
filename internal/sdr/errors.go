package sdr

import "fmt"

// ParseError is returned for a single malformed line of sweep output.
// It is always recoverable: the line is discarded and ingestion continues.
type ParseError struct {
	Line  string // Offending line, trimmed
	Field string // Field that failed, empty when the line shape is wrong
	Err   error
}

func NewParseError(line, field string, err error) *ParseError {
	return &ParseError{Line: line, Field: field, Err: err}
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("parse error: %s", e.Err)
	}
	return fmt.Sprintf("parse error: invalid %s: %s", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
