package tracker

import (
	"errors"
	"fmt"
)

// ErrFetchFailed classifies any transport or upstream failure of a page request
var ErrFetchFailed = errors.New("fetch failed")

// FetchError describes the page request that failed
type FetchError struct {
	StartAt  int
	PageSize int
	Err      error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	return fmt.Sprintf("%v: page startAt=%d maxResults=%d: %v", ErrFetchFailed, e.StartAt, e.PageSize, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports FetchError as ErrFetchFailed
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// NewFetchError wraps err as a FetchFailed error for the given page
func NewFetchError(startAt, pageSize int, err error) *FetchError {
	return &FetchError{StartAt: startAt, PageSize: pageSize, Err: err}
}
