package scan

import "fmt"

// UnexpectedError wraps any failure that is neither an auth problem nor a
// listing failure. It is never swallowed.
type UnexpectedError struct {
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error during Gmail scan: %v", e.Err)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

// SkipReason says why a message produced no rejection record.
type SkipReason int

const (
	SkipNone SkipReason = iota
	SkipFetchFailed
	SkipNoBody
	SkipNoTimestamp
	SkipNotRejection
)

func (r SkipReason) String() string {
	switch r {
	case SkipNone:
		return "none"
	case SkipFetchFailed:
		return "fetch_failed"
	case SkipNoBody:
		return "no_body"
	case SkipNoTimestamp:
		return "no_timestamp"
	case SkipNotRejection:
		return "not_rejection"
	}
	return fmt.Sprintf("SkipReason(%d)", int(r))
}
