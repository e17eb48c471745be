package shared

import (
	"errors"

	"github.com/roach88/ycoord/internal/crdt"
)

var (
	// ErrDestroyed is the panic value of operations on a destroyed Document.
	// Using a destroyed Document is a programmer error.
	ErrDestroyed = errors.New("shared: document destroyed")

	// ErrNegativeIndex is returned when a list or text index is negative.
	ErrNegativeIndex = errors.New("shared: negative index")

	// ErrSubdocDestroy is returned by Destroy on a subdocument; use the
	// parent's DestroyChild.
	ErrSubdocDestroy = errors.New("shared: subdocuments are destroyed through their parent")

	// ErrNotChild is returned when a subdocument operation names a document
	// that is not a child of the transaction's document.
	ErrNotChild = crdt.ErrNotChild

	// ErrAlreadyIntegrated is returned when inserting a document that
	// already has a parent.
	ErrAlreadyIntegrated = crdt.ErrAlreadyIntegrated
)

type (
	// IndexError reports an index beyond a collection's bounds.
	IndexError = crdt.IndexError
	// DecodeError reports a malformed update payload.
	DecodeError = crdt.DecodeError
	// PathError reports a malformed query expression.
	PathError = crdt.PathError
)

// IsIndexError reports whether err is, or wraps, an *IndexError.
func IsIndexError(err error) bool { return crdt.IsIndexError(err) }

// IsDecodeError reports whether err is, or wraps, a *DecodeError.
func IsDecodeError(err error) bool { return crdt.IsDecodeError(err) }

// IsPathError reports whether err is, or wraps, a *PathError.
func IsPathError(err error) bool { return crdt.IsPathError(err) }
