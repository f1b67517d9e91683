package domain

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError reports that the service throttled a call. RetryAfter
// carries the server's hint for when to try again, zero when the server
// gave none.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// TransientError wraps a failure worth retrying: network trouble, timeouts,
// server-side 5xx responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError wraps a failure that no retry can fix, such as a record
// that is already gone or a forbidden delete. The affected candidate is
// skipped and counted; the run continues.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// ListingError marks a page listing that failed after the source's own
// retries. It is fatal to the run so that an incomplete scan is never
// mistaken for an exhausted feed.
type ListingError struct {
	Err error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("list posts: %v", e.Err)
}

func (e *ListingError) Unwrap() error {
	return e.Err
}

// ErrAuthFailed is returned when the service rejects the account's
// credentials. Nothing is scanned after it.
var ErrAuthFailed = errors.New("authentication failed")
