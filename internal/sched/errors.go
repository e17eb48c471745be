package sched

import "errors"

var (
	// ErrClosed is returned for submissions after Close.
	ErrClosed = errors.New("sched: scheduler closed")

	// ErrReentrant is the panic value raised when a unit submits work to the
	// scheduler that is running it.
	ErrReentrant = errors.New("sched: reentrant submission from inside a running unit")
)
