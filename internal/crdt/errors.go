package crdt

import (
	"errors"
	"fmt"
)

// IndexError reports an index or range outside a collection's bounds.
type IndexError struct {
	// Op is the operation that failed, e.g. "list insert".
	Op string

	// Index and Len describe the offending position; Len is the collection
	// length at the time of the call.
	Index int
	Count int
	Len   int
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	if e.Count > 0 {
		return fmt.Sprintf("%s: range [%d, %d) out of bounds (len=%d)", e.Op, e.Index, e.Index+e.Count, e.Len)
	}
	return fmt.Sprintf("%s: index %d out of bounds (len=%d)", e.Op, e.Index, e.Len)
}

// DecodeError reports a malformed update or state vector. The document is
// unchanged when ApplyUpdate returns one.
type DecodeError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed update: %s: %v", e.Message, e.Err)
	}
	return "malformed update: " + e.Message
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// PathError reports a malformed query expression.
type PathError struct {
	Expr string
	Err  error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path %q: %v", e.Expr, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PathError) Unwrap() error {
	return e.Err
}

// ErrNotChild is returned when a subdocument operation names a document
// that is not integrated in the transaction's document.
var ErrNotChild = errors.New("crdt: document is not a subdocument of this document")

// IsIndexError reports whether err is, or wraps, an *IndexError.
func IsIndexError(err error) bool {
	var ie *IndexError
	return errors.As(err, &ie)
}

// IsDecodeError reports whether err is, or wraps, a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsPathError reports whether err is, or wraps, a *PathError.
func IsPathError(err error) bool {
	var pe *PathError
	return errors.As(err, &pe)
}

func decodeErr(msg string, err error) *DecodeError {
	return &DecodeError{Message: msg, Err: err}
}
