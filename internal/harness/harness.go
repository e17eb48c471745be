package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/ycoord/internal/codec"
	"github.com/roach88/ycoord/internal/node"
	"github.com/roach88/ycoord/internal/sched"
	"github.com/roach88/ycoord/internal/shared"
	"github.com/roach88/ycoord/internal/testutil"
)

// Transaction origins used by scenario replicas.
const (
	OriginLocal  = "local"
	OriginRemote = "remote"
)

// Harness executes one scenario against a fresh set of replicas.
//
// Observers registered by observe steps use SyncDuringCommit dispatch, so
// every change event lands in the trace right after the step that caused
// it. That keeps traces deterministic and comparable to golden files.
type Harness struct {
	docs    map[string]*shared.Document
	clock   *testutil.DeterministicClock
	logger  *slog.Logger
	metrics *sched.Metrics

	mu     sync.Mutex
	result *Result
	subs   []*shared.Subscription

	// undos holds the undo manager of each replica, created by its first
	// undo.track step.
	undos map[string]*shared.UndoManager
}

// Option configures a run.
type Option func(*Harness)

// WithLogger routes replica diagnostics to l. Default: discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// WithMetrics records scheduler telemetry of every replica in m.
func WithMetrics(m *sched.Metrics) Option {
	return func(h *Harness) {
		h.metrics = m
	}
}

// Run executes a scenario and returns the result.
//
// Each run creates its own replicas with fixed GUIDs and client ids, so
// the same scenario always yields the same trace. A step failure that the
// scenario did not expect aborts the run with an error; assertion failures
// are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		docs:   make(map[string]*shared.Document, len(scenario.Documents)),
		clock:  testutil.NewDeterministicClock(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		result: NewResult(),
		undos:  make(map[string]*shared.UndoManager),
	}
	for _, opt := range opts {
		opt(h)
	}
	defer h.close(ctx)

	ids := testutil.NewIDGenerator()
	for _, decl := range scenario.Documents {
		guid, client := ids.Next()
		if decl.GUID != "" {
			guid = decl.GUID
		}
		if decl.ClientID != 0 {
			client = decl.ClientID
		}
		o := shared.DefaultOptions()
		o.GUID = guid
		o.ClientID = client
		o.Origin = OriginLocal
		o.Logger = h.logger
		o.Metrics = h.metrics
		h.docs[decl.Name] = shared.NewDocument(o)
	}

	for i, step := range scenario.Steps {
		pos := h.record(TraceEvent{
			Type:   EventStep,
			Doc:    step.Doc,
			Op:     step.Op,
			Target: step.Target,
		})

		args, err := h.execute(ctx, step)
		h.mu.Lock()
		h.result.Trace[pos].Args = args
		h.mu.Unlock()

		switch {
		case err != nil && step.ExpectError:
			h.mu.Lock()
			h.result.Trace[pos].Error = errorClass(err)
			h.mu.Unlock()
		case err != nil:
			return nil, fmt.Errorf("step %d (%s on %s): %w", i, step.Op, step.Doc, err)
		case step.ExpectError:
			h.result.AddError(fmt.Sprintf("step %d (%s on %s): expected an error", i, step.Op, step.Doc))
		}

		h.logger.Debug("scenario step applied", "scenario", scenario.Name, "step", i, "op", step.Op, "doc", step.Doc)
	}

	for _, decl := range scenario.Documents {
		fp, err := h.docs[decl.Name].Fingerprint(ctx)
		if err != nil {
			return nil, fmt.Errorf("fingerprint %s: %w", decl.Name, err)
		}
		h.result.Fingerprints[decl.Name] = fp
	}

	actx := &AssertionContext{Ctx: ctx, Docs: h.docs}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}

	return h.result, nil
}

// record appends ev with the next sequence number and returns its position.
func (h *Harness) record(ev TraceEvent) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev.Seq = h.clock.Next()
	h.result.Trace = append(h.result.Trace, ev)
	return len(h.result.Trace) - 1
}

func (h *Harness) close(ctx context.Context) {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
	for _, um := range h.undos {
		um.Close()
	}
	for name, d := range h.docs {
		if err := d.Destroy(ctx); err != nil {
			h.logger.Warn("destroy replica failed", "doc", name, "error", err)
		}
	}
}

// execute applies one step and returns the arguments it ran with.
func (h *Harness) execute(ctx context.Context, step Step) (node.Object, error) {
	doc := h.docs[step.Doc]

	switch step.Op {
	case OpMapSet:
		v, err := node.FromAny(step.Value)
		if err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		args := node.Object{"key": node.String(step.Key), "value": v}
		return args, shared.GetMap[node.Node](doc, step.Target).Set(ctx, step.Key, v)

	case OpMapRemove:
		args := node.Object{"key": node.String(step.Key)}
		_, _, err := shared.GetMap[node.Node](doc, step.Target).Remove(ctx, step.Key)
		return args, err

	case OpMapClear:
		return nil, shared.GetMap[node.Node](doc, step.Target).RemoveAll(ctx)

	case OpListInsert, OpListAppend:
		values, err := fromAll(step.Values)
		if err != nil {
			return nil, err
		}
		list := shared.GetList[node.Node](doc, step.Target)
		if step.Op == OpListAppend {
			return node.Object{"values": values}, list.Append(ctx, values...)
		}
		args := node.Object{"index": node.Int(step.Index), "values": values}
		return args, list.InsertRange(ctx, step.Index, values...)

	case OpListRemove:
		n := step.Len
		if n == 0 {
			n = 1
		}
		args := node.Object{"index": node.Int(step.Index), "len": node.Int(n)}
		return args, shared.GetList[node.Node](doc, step.Target).RemoveRange(ctx, step.Index, n)

	case OpListMove:
		args := node.Object{"index": node.Int(step.Index), "to": node.Int(step.To)}
		return args, shared.GetList[node.Node](doc, step.Target).Move(ctx, step.Index, step.To)

	case OpTextInsert:
		text := shared.GetText(doc, step.Target)
		args := node.Object{"index": node.Int(step.Index), "text": node.String(step.Text)}
		if len(step.Attrs) == 0 {
			return args, text.Insert(ctx, step.Index, step.Text)
		}
		attrs, err := node.FromAny(step.Attrs)
		if err != nil {
			return nil, fmt.Errorf("attrs: %w", err)
		}
		args["attrs"] = attrs
		return args, text.InsertWithAttributes(ctx, step.Index, step.Text, codec.Attrs(step.Attrs))

	case OpTextAppend:
		args := node.Object{"text": node.String(step.Text)}
		return args, shared.GetText(doc, step.Target).Append(ctx, step.Text)

	case OpTextDelete:
		args := node.Object{"index": node.Int(step.Index), "len": node.Int(step.Len)}
		return args, shared.GetText(doc, step.Target).RemoveRange(ctx, step.Index, step.Len)

	case OpTextFormat:
		attrs, err := node.FromAny(step.Attrs)
		if err != nil {
			return nil, fmt.Errorf("attrs: %w", err)
		}
		args := node.Object{"index": node.Int(step.Index), "len": node.Int(step.Len), "attrs": attrs}
		return args, shared.GetText(doc, step.Target).Format(ctx, step.Index, step.Len, codec.Attrs(step.Attrs))

	case OpObserve:
		h.observe(step.Doc, doc, step.Target, step.Kind)
		return node.Object{"kind": node.String(step.Kind)}, nil

	case OpUndoTrack:
		c := collection(doc, step.Target, step.Kind)
		if um, ok := h.undos[step.Doc]; ok {
			um.ExpandScope(c)
		} else {
			// Every step is its own undo step.
			h.undos[step.Doc] = shared.NewUndoManager(doc, []shared.Collection{c}, shared.WithCaptureTimeout(0))
		}
		return node.Object{"kind": node.String(step.Kind)}, nil

	case OpUndo, OpRedo:
		um, ok := h.undos[step.Doc]
		if !ok {
			return nil, fmt.Errorf("%s: no undo.track step for %s", step.Op, step.Doc)
		}
		revert := um.Undo
		if step.Op == OpRedo {
			revert = um.Redo
		}
		changed, err := revert(ctx)
		return node.Object{"changed": node.Bool(changed)}, err

	case OpSync:
		args := node.Object{"from": node.String(step.From)}
		return args, syncFrom(ctx, h.docs[step.From], doc)
	}

	return nil, fmt.Errorf("unknown op %q", step.Op)
}

func collection(doc *shared.Document, target, kind string) shared.Collection {
	switch kind {
	case KindMap:
		return shared.GetMap[node.Node](doc, target)
	case KindList:
		return shared.GetList[node.Node](doc, target)
	}
	return shared.GetText(doc, target)
}

// syncFrom sends dst everything src has that dst lacks.
func syncFrom(ctx context.Context, src, dst *shared.Document) error {
	sv, err := dst.StateVector(ctx)
	if err != nil {
		return err
	}
	update, err := src.EncodeDiff(ctx, sv)
	if err != nil {
		return err
	}
	return dst.ApplyUpdateOrigin(ctx, OriginRemote, update)
}

func (h *Harness) observe(name string, doc *shared.Document, target, kind string) {
	emit := func(changes node.Array) {
		h.record(TraceEvent{Type: EventChange, Doc: name, Target: target, Changes: changes})
	}
	inline := shared.WithDispatch(shared.SyncDuringCommit)

	var sub *shared.Subscription
	switch kind {
	case KindMap:
		sub = shared.GetMap[node.Node](doc, target).Observe(func(cs []shared.MapChange[node.Node]) {
			emit(mapChangesNode(cs))
		}, inline)
	case KindList:
		sub = shared.GetList[node.Node](doc, target).Observe(func(cs []shared.ListChange[node.Node]) {
			emit(listChangesNode(cs))
		}, inline)
	case KindText:
		sub = shared.GetText(doc, target).Observe(func(ds []shared.TextDelta) {
			emit(textDeltasNode(ds))
		}, inline)
	}

	h.mu.Lock()
	h.subs = append(h.subs, sub)
	h.mu.Unlock()
}

func mapChangesNode(cs []shared.MapChange[node.Node]) node.Array {
	out := make(node.Array, 0, len(cs))
	for _, c := range cs {
		obj := node.Object{"kind": node.String(c.Kind.String()), "key": node.String(c.Key)}
		if c.Value != nil {
			obj["value"] = c.Value
		}
		if c.Kind == shared.Updated && c.OldValue != nil {
			obj["old_value"] = c.OldValue
		}
		out = append(out, obj)
	}
	return out
}

func listChangesNode(cs []shared.ListChange[node.Node]) node.Array {
	out := make(node.Array, 0, len(cs))
	for _, c := range cs {
		obj := node.Object{"kind": node.String(c.Kind.String()), "index": node.Int(c.Index)}
		if c.Decoded {
			obj["value"] = c.Value
		}
		out = append(out, obj)
	}
	return out
}

func textDeltasNode(ds []shared.TextDelta) node.Array {
	out := make(node.Array, 0, len(ds))
	for _, d := range ds {
		obj := node.Object{"op": node.String(d.Op.String())}
		switch {
		case d.Op != shared.DeltaInsert:
			obj["len"] = node.Int(d.Len)
		case d.Embed != nil:
			obj["embed"] = d.Embed
		default:
			obj["text"] = node.String(d.Text)
		}
		if len(d.Attrs) > 0 {
			if attrs, err := node.FromAny(map[string]any(d.Attrs)); err == nil {
				obj["attrs"] = attrs
			}
		}
		out = append(out, obj)
	}
	return out
}

func fromAll(vs []any) (node.Array, error) {
	out := make(node.Array, len(vs))
	for i, v := range vs {
		n, err := node.FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("values[%d]: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}

// errorClass names the failure category recorded for expected errors.
func errorClass(err error) string {
	switch {
	case shared.IsIndexError(err), errors.Is(err, shared.ErrNegativeIndex):
		return "index"
	case shared.IsDecodeError(err):
		return "decode"
	case shared.IsPathError(err):
		return "path"
	}
	return err.Error()
}
