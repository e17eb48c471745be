package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/ycoord/internal/node"
	"github.com/roach88/ycoord/internal/schema"
	"github.com/roach88/ycoord/internal/shared"
	"github.com/roach88/ycoord/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			if event.Type == EventStep {
				fmt.Fprintf(&buf, "  [%d] %s %s %s\n", event.Seq, event.Doc, event.Op, formatArgs(event.Args))
			}
		}
	}

	return buf.String()
}

// AssertionContext gives state assertions access to the replicas.
type AssertionContext struct {
	Ctx  context.Context
	Docs map[string]*shared.Document
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertConverged:
			err = assertConverged(result, assertion)
		case AssertSnapshot, AssertQuery, AssertSchema, AssertPersisted:
			if actx == nil || actx.Docs[assertion.Doc] == nil {
				err = fmt.Errorf("assertion[%d]: %s requires replica %q", i, assertion.Type, assertion.Doc)
				break
			}
			doc := actx.Docs[assertion.Doc]
			switch assertion.Type {
			case AssertSnapshot:
				err = assertSnapshot(actx.Ctx, doc, assertion)
			case AssertQuery:
				err = assertQuery(actx.Ctx, doc, assertion)
			case AssertSchema:
				err = assertSchema(actx.Ctx, doc, assertion)
			case AssertPersisted:
				err = assertPersisted(actx.Ctx, doc)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// matchesOp reports whether event is selected by op.
func matchesOp(event TraceEvent, op string) bool {
	if op == EventChange {
		return event.Type == EventChange
	}
	return event.Type == EventStep && event.Op == op
}

// assertTraceContains checks that some event matches the op and carries
// the expected args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchesOp(event, assertion.Op) && matchArgs(event.Args, assertion.Args) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("op %s with args %v", assertion.Op, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrence of each op appears in
// the given order. Other events may intervene.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		for _, op := range assertion.Ops {
			if positions[op] == 0 && matchesOp(event, op) {
				positions[op] = i + 1
			}
		}
	}

	for _, op := range assertion.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", assertion.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Ops); i++ {
		prev, curr := assertion.Ops[i-1], assertion.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks that exactly Count events match.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matchesOp(event, assertion.Op) && matchArgs(event.Args, assertion.Args) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertConverged checks that the named replicas have equal fingerprints.
func assertConverged(result *Result, assertion Assertion) error {
	first := assertion.Docs[0]
	want, ok := result.Fingerprints[first]
	if !ok {
		return fmt.Errorf("converged: no fingerprint for %q", first)
	}
	for _, name := range assertion.Docs[1:] {
		got, ok := result.Fingerprints[name]
		if !ok {
			return fmt.Errorf("converged: no fingerprint for %q", name)
		}
		if got != want {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("%s fingerprint %s", name, short(want)),
				Actual:   fmt.Sprintf("%s fingerprint %s (differs from %s)", name, short(got), first),
			}
		}
	}
	return nil
}

// assertSnapshot checks the replica projection. Top-level roots listed in
// Expect must be present and equal; other roots are ignored.
func assertSnapshot(ctx context.Context, doc *shared.Document, assertion Assertion) error {
	expected, err := node.FromAny(assertion.Expect)
	if err != nil {
		return fmt.Errorf("snapshot: expect: %w", err)
	}
	want, ok := expected.(node.Object)
	if !ok {
		return fmt.Errorf("snapshot: expect must be a mapping of root names")
	}

	snap, err := doc.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", assertion.Doc, err)
	}

	for _, root := range want.SortedKeys() {
		got, exists := snap[root]
		if !exists || !node.Equal(got, want[root]) {
			return &AssertionError{
				Type:     AssertSnapshot,
				Expected: fmt.Sprintf("%s.%s = %s", assertion.Doc, root, marshal(want[root])),
				Actual:   fmt.Sprintf("%s.%s = %s", assertion.Doc, root, marshal(got)),
			}
		}
	}
	return nil
}

// assertQuery checks the matches of a JSONPath expression, in order.
func assertQuery(ctx context.Context, doc *shared.Document, assertion Assertion) error {
	matches, err := doc.QueryPath(ctx, assertion.Path)
	if err != nil {
		return fmt.Errorf("query %s on %s: %w", assertion.Path, assertion.Doc, err)
	}

	got := make(node.Array, len(matches))
	for i, m := range matches {
		n, err := node.Parse([]byte(m))
		if err != nil {
			return fmt.Errorf("query %s: match %d: %w", assertion.Path, i, err)
		}
		got[i] = n
	}

	want := node.Array{}
	if assertion.Expect != nil {
		expected, err := node.FromAny(assertion.Expect)
		if err != nil {
			return fmt.Errorf("query: expect: %w", err)
		}
		if arr, ok := expected.(node.Array); ok {
			want = arr
		} else {
			want = node.Array{expected}
		}
	}

	if !node.Equal(got, want) {
		return &AssertionError{
			Type:     AssertQuery,
			Expected: fmt.Sprintf("%s matches %s", assertion.Path, marshal(want)),
			Actual:   marshal(got),
		}
	}
	return nil
}

// assertSchema validates the replica projection, or each match of Path,
// against the inline CUE schema.
func assertSchema(ctx context.Context, doc *shared.Document, assertion Assertion) error {
	s, err := schema.Compile(assertion.Doc+".cue", assertion.Schema)
	if err != nil {
		return err
	}
	if assertion.Definition != "" {
		if s, err = s.Definition(assertion.Definition); err != nil {
			return err
		}
	}

	vs, err := schema.ValidateDocument(ctx, s, doc, assertion.Path)
	if err != nil {
		return err
	}
	if len(vs) == 0 {
		return nil
	}

	msgs := make([]string, len(vs))
	for i, v := range vs {
		msgs[i] = v.Error()
	}
	return &AssertionError{
		Type:     AssertSchema,
		Expected: fmt.Sprintf("%s conforms to %s", assertion.Doc, s.Name()),
		Actual:   strings.Join(msgs, "; "),
	}
}

// assertPersisted stores the replica as one compacted update in a scratch
// database, loads it back, and compares fingerprints.
func assertPersisted(ctx context.Context, doc *shared.Document) error {
	st, err := store.Open(":memory:")
	if err != nil {
		return fmt.Errorf("persisted: %w", err)
	}
	defer st.Close()

	if _, err := st.EnsureDocument(ctx, doc.GUID(), doc.ClientID()); err != nil {
		return fmt.Errorf("persisted: %w", err)
	}
	if _, err := store.Compact(ctx, st, doc); err != nil {
		return fmt.Errorf("persisted: %w", err)
	}

	loaded, err := store.Load(ctx, st, doc.GUID(), shared.DefaultOptions())
	if err != nil {
		return fmt.Errorf("persisted: %w", err)
	}
	defer loaded.Destroy(ctx)

	want, err := doc.Fingerprint(ctx)
	if err != nil {
		return err
	}
	got, err := loaded.Fingerprint(ctx)
	if err != nil {
		return err
	}
	if got != want {
		return &AssertionError{
			Type:     AssertPersisted,
			Expected: fmt.Sprintf("restored fingerprint %s", short(want)),
			Actual:   fmt.Sprintf("restored fingerprint %s", short(got)),
		}
	}
	return nil
}

// matchArgs checks if actual args contain all expected key-value pairs.
// Extra keys in actual are ignored.
func matchArgs(actual node.Object, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}

	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		want, err := node.FromAny(expectedVal)
		if err != nil || !node.Equal(actualVal, want) {
			return false
		}
	}
	return true
}

func formatArgs(args node.Object) string {
	if len(args) == 0 {
		return "{}"
	}
	return marshal(args)
}

func marshal(n node.Node) string {
	if n == nil {
		return "<absent>"
	}
	data, err := node.Marshal(n)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
