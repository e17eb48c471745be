// Package harness runs replica scenarios: YAML files that declare a few
// replicas of one or more documents, apply collection operations and sync
// exchanges to them, and assert on the resulting trace and state.
//
// # Scenario Format
//
//	name: converge_two_replicas
//	description: "Concurrent edits converge after a two-way sync"
//	documents:
//	  - name: a
//	  - name: b
//	    guid: 00000000-0000-4000-8000-000000000001
//	steps:
//	  - doc: b
//	    op: observe
//	    target: settings
//	    kind: map
//	  - doc: a
//	    op: map.set
//	    target: settings
//	    key: theme
//	    value: dark
//	  - doc: b
//	    op: sync
//	    from: a
//	assertions:
//	  - type: converged
//	    docs: [a, b]
//	  - type: query
//	    doc: b
//	    path: $.settings.theme
//	    expect: [dark]
//
// Replicas that should hold the same document must share a GUID. Every
// replica gets a distinct client id unless it sets one.
//
// # Assertion Types
//
//   - converged: the listed replicas have equal projection fingerprints
//   - snapshot: listed roots of the projection equal the expected values
//   - query: a JSONPath expression selects exactly the expected matches
//   - schema: the projection, or each query match, conforms to inline CUE
//   - persisted: the replica survives a store round trip unchanged
//   - trace_contains, trace_order, trace_count: checks on the trace
//
// # Deterministic Testing
//
// Replicas get fixed GUIDs and client ids (testutil.IDGenerator), trace
// events are stamped by testutil.DeterministicClock, and observers run
// inline with the commit. The same scenario always produces byte-identical
// canonical traces, which RunWithGolden compares to testdata/golden.
package harness
