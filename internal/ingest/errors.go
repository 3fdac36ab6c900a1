package ingest

import "fmt"

// Load-fatal error kinds. Row-scoped problems (validation, reference
// resolution) are handled in place by skipping the row; only these abort
// an institution's load and roll back its transaction.

// WriteError marks a store write that failed after any permitted retries.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// TxError marks a failed begin or commit.
type TxError struct {
	Op  string
	Err error
}

func (e *TxError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TxError) Unwrap() error { return e.Err }

// TooManyFailuresError aborts a load whose skipped-row share crossed the
// configured threshold, so a mostly-broken file is not silently committed
// as a near-empty load.
type TooManyFailuresError struct {
	Skipped int64
	Seen    int64
}

func (e *TooManyFailuresError) Error() string {
	return fmt.Sprintf("aborting load: %d of %d rows failed", e.Skipped, e.Seen)
}
