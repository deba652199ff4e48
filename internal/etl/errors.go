package etl

import (
	"errors"
	"fmt"
)

var (
	ErrInput           = errors.New("import input unusable")
	ErrMalformedRecord = errors.New("malformed work package record")
	ErrRemoteFetch     = errors.New("activity fetch failed")
	ErrParseMismatch   = errors.New("status change not parsable")
)

// InputError reports a bulk file that is absent, unreadable or not JSON.
// It aborts the import before any write.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrInput, e.Path, e.Err)
}

func (e *InputError) Unwrap() []error { return []error{ErrInput, e.Err} }

// MalformedRecordError reports a record that was skipped. Index is its
// position in the export.
type MalformedRecordError struct {
	Index int
	Err   error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s at index %d: %v", ErrMalformedRecord, e.Index, e.Err)
}

func (e *MalformedRecordError) Unwrap() []error { return []error{ErrMalformedRecord, e.Err} }

// RemoteFetchFailure reports an item whose activities could not be fetched.
// The item is imported with no activities.
type RemoteFetchFailure struct {
	WorkItemID int64
	Err        error
}

func (e *RemoteFetchFailure) Error() string {
	return fmt.Sprintf("%s for work package %d: %v", ErrRemoteFetch, e.WorkItemID, e.Err)
}

func (e *RemoteFetchFailure) Unwrap() []error { return []error{ErrRemoteFetch, e.Err} }

// ParseMismatch reports a status-change line that did not split into a
// from/to pair. Only that activity is dropped.
type ParseMismatch struct {
	WorkItemID int64
	Raw        string
}

func (e *ParseMismatch) Error() string {
	return fmt.Sprintf("%s for work package %d: %q", ErrParseMismatch, e.WorkItemID, e.Raw)
}

func (e *ParseMismatch) Unwrap() error { return ErrParseMismatch }
