// Package sched serializes units of work against one document.
//
// A Scheduler owns a FIFO queue and runs admitted units one at a time on a
// worker goroutine. Units never overlap, so a unit has exclusive access to
// the document for its whole duration.
//
// Two submission modes share the same queue:
//   - Run suspends the caller until the unit completes. A caller whose
//     context is cancelled while its unit is still queued gets ctx.Err()
//     and the unit is skipped. Once a unit has started it runs to completion.
//   - RunBlocking is a deprecated adapter that ignores cancellation.
//
// Submitting to a scheduler from inside one of its own units would wait on
// itself forever. The unit's context carries the scheduler, and such a
// submission panics with ErrReentrant.
//
// Hooks registered with AfterRelease run on the worker after the unit
// returns and before the next unit starts.
package sched
