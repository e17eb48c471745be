// Package shared is the typed, concurrency-safe binding over crdt documents.
//
// A Document owns one crdt.Doc and one sched.Scheduler. Every read and
// write runs as a unit of that scheduler, so at most one transaction is open
// on a document at any instant.
//
// Collection proxies (Map, List, Text) are stateless bindings to one branch.
// Each operation comes in two forms: a ctx form that schedules its own unit,
// and a Tx form that runs inside a transaction the caller already holds, so
// composite read-then-write steps can share one transaction.
//
// Change notifications are delivered through Subscriptions. Deferred
// subscriptions (the default) receive batches on their own goroutine after
// the producing unit has released the document, in commit order, and may
// call back into the document. Sync subscriptions run inside the commit and
// must not.
package shared
