package aggregate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingColumn means a derivation's input column is absent. The
	// derivation is omitted; nothing else is affected.
	ErrMissingColumn = errors.New("required column missing")
	// ErrEmptyResult means a derivation ran but produced no rows.
	ErrEmptyResult = errors.New("no data")
	// ErrInvalidTopN is returned for a top-N outside [MinTopN, MaxTopN].
	ErrInvalidTopN = fmt.Errorf("top_n must be between %d and %d", MinTopN, MaxTopN)
)

// SkipError explains why a single derivation was omitted.
type SkipError struct {
	Derivation string
	Columns    []string
	Err        error
}

func (e *SkipError) Error() string {
	if len(e.Columns) > 0 {
		return fmt.Sprintf("%s: %v: %s", e.Derivation, e.Err, strings.Join(e.Columns, ", "))
	}
	return fmt.Sprintf("%s: %v", e.Derivation, e.Err)
}

func (e *SkipError) Unwrap() error { return e.Err }

// SkipReason is the machine-readable form of a skip.
type SkipReason string

const (
	ReasonMissingColumn SkipReason = "missing_column"
	ReasonEmptyResult   SkipReason = "empty_result"
)

// Reason classifies the skip.
func (e *SkipError) Reason() SkipReason {
	if errors.Is(e.Err, ErrMissingColumn) {
		return ReasonMissingColumn
	}
	return ReasonEmptyResult
}

func missing(derivation string, columns ...string) error {
	return &SkipError{Derivation: derivation, Columns: columns, Err: ErrMissingColumn}
}

func empty(derivation string) error {
	return &SkipError{Derivation: derivation, Err: ErrEmptyResult}
}
