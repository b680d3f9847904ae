package dataset

import (
	"errors"
	"fmt"
)

// ErrDataLoad matches every failure to turn an upload into a canonical table.
var ErrDataLoad = errors.New("data load failed")

// LoadError reports an unreadable workbook or an unparseable declared column.
// Callers treat the result as an empty table.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("loading data: %v", e.Err)
	}
	return fmt.Sprintf("loading data (%s): %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDataLoad) match any LoadError.
func (e *LoadError) Is(target error) bool {
	return target == ErrDataLoad
}
