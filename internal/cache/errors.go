package cache

import "fmt"

// DataUnavailableError means the upstream failed and no entry of any age exists.
type DataUnavailableError struct {
	Symbol string
	Cause  error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("no data available for %s: %v", e.Symbol, e.Cause)
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Cause
}
