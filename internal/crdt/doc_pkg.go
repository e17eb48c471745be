// Package crdt is the document engine behind the shared collections.
//
// It implements the primitives the binding layer depends on: documents with
// stable identity, transactions, map/list/text branches, opaque update and
// state vector payloads, a JSONPath query over the document projection,
// native observers and nested subdocuments.
//
// CONCURRENCY:
//
// The engine is NOT safe for concurrent transactions. Exactly one Txn may be
// open per Doc at a time and all reads and writes go through it; the sched
// package enforces this. Observer registration and root lookup are safe from
// any goroutine.
//
// MERGE MODEL:
//
//   - Every operation is stamped with an ID (client, clock) and a Lamport
//     timestamp. Clocks are contiguous per client, which makes state vectors
//     a simple map of client to next clock.
//   - Map entries are last-writer-wins by (lamport, client).
//   - Lists and text are RGA sequences: each element names the element to
//     its left at insert time (origin); concurrent siblings are ordered by
//     descending (lamport, client). Removed elements stay as tombstones.
//   - Text is addressed in UTF-16 code units; an embed counts as one unit.
//
// Operations whose causal dependencies are unknown are parked and retried
// after every applied update.
package crdt
