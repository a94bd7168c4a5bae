package schema

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotAvailable is matched by every NotAvailableError through errors.Is.
var ErrNotAvailable = errors.New("no scores published")

// ErrDuplicateScore reports a snapshot listing the same CVE more than once.
var ErrDuplicateScore = errors.New("duplicate score")

// InvalidRangeError reports unusable date bounds. It is never retried.
type InvalidRangeError struct {
	Min    time.Time
	Max    time.Time
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range %s - %s: %s", FormatDate(e.Min), FormatDate(e.Max), e.Reason)
}

// NotAvailableError reports a date for which the source has no published snapshot.
type NotAvailableError struct {
	Date time.Time
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("%s for %s", ErrNotAvailable, FormatDate(e.Date))
}

// Is lets errors.Is match ErrNotAvailable.
func (e *NotAvailableError) Is(target error) bool {
	return target == ErrNotAvailable
}

// FetchError reports a transport or parse failure while fetching a snapshot.
type FetchError struct {
	Date time.Time
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("failed to fetch scores for %s: %v", FormatDate(e.Date), e.Err)
	}
	return fmt.Sprintf("failed to fetch scores for %s from %s: %v", FormatDate(e.Date), e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// CacheIOError reports a failure to read or write a cache entry.
type CacheIOError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheIOError) Unwrap() error {
	return e.Err
}

// NotFoundError reports an empty result where at least one row was expected.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.What)
}

// IsNotAvailable reports whether err signals a date with no published scores.
func IsNotAvailable(err error) bool {
	return errors.Is(err, ErrNotAvailable)
}
