package fetch

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a 404 (or equivalent) from the archive mirror.
// The month is non-fatal and MUST be skipped by the caller (§4.3, §7).
var ErrNotFound = errors.New("archive not found")

// TransportErr wraps any non-404 failure, including timeouts. It is
// fatal for the whole update run (§5, §7).
type TransportErr struct {
	Instrument string
	Variant    string
	Year       int
	Month      int
	URL        string
	Err        error
}

func (e *TransportErr) Error() string {
	return fmt.Sprintf("transport error fetching %s %s %04d-%02d (%s): %v",
		e.Instrument, e.Variant, e.Year, e.Month, e.URL, e.Err)
}

func (e *TransportErr) Unwrap() error { return e.Err }
