package tickio

import "fmt"

// MalformedArchiveError reports any CSV/ZIP nonconformance: missing
// column, non-numeric price, NaN, negative price, or unparseable
// timestamp (§4.3, §7). Fatal for the whole update run.
type MalformedArchiveError struct {
	Instrument string
	Variant    string
	Year       int
	Month      int
	Reason     string
	Err        error
}

func (e *MalformedArchiveError) Error() string {
	return fmt.Sprintf("malformed archive %s %s %04d-%02d: %s", e.Instrument, e.Variant, e.Year, e.Month, e.Reason)
}

func (e *MalformedArchiveError) Unwrap() error { return e.Err }
