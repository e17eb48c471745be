package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario describes replicas, the operations applied to them, and what
// must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Documents declares the replicas. Each gets a fixed GUID and client id
	// unless it sets its own.
	Documents []DocumentDecl `yaml:"documents"`

	// Steps run in order against the declared replicas.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and replica state.
	Assertions []Assertion `yaml:"assertions"`
}

// DocumentDecl declares one replica. Replicas sharing a GUID are copies of
// the same document.
type DocumentDecl struct {
	Name     string `yaml:"name"`
	GUID     string `yaml:"guid,omitempty"`
	ClientID uint64 `yaml:"client_id,omitempty"`
}

// Step is one operation. Which fields apply depends on Op:
//
//	map.set       target key value
//	map.remove    target key
//	map.clear     target
//	list.insert   target index values
//	list.append   target values
//	list.remove   target index [len]
//	list.move     target index to
//	text.insert   target index text [attrs]
//	text.append   target text
//	text.delete   target index len
//	text.format   target index len attrs
//	observe       target kind
//	undo.track    target kind
//	undo
//	redo
//	sync          from
type Step struct {
	Doc    string         `yaml:"doc"`
	Op     string         `yaml:"op"`
	Target string         `yaml:"target,omitempty"`
	Key    string         `yaml:"key,omitempty"`
	Index  int            `yaml:"index,omitempty"`
	Len    int            `yaml:"len,omitempty"`
	To     int            `yaml:"to,omitempty"`
	Value  any            `yaml:"value,omitempty"`
	Values []any          `yaml:"values,omitempty"`
	Text   string         `yaml:"text,omitempty"`
	Attrs  map[string]any `yaml:"attrs,omitempty"`
	Kind   string         `yaml:"kind,omitempty"`
	From   string         `yaml:"from,omitempty"`

	// ExpectError marks a step that must fail. The failure is recorded in
	// the trace instead of failing the scenario.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// Assertion validates the trace or replica state.
type Assertion struct {
	// Type selects the check; see the Assert constants.
	Type string `yaml:"type"`

	// Doc is the replica inspected by snapshot, query, schema and persisted.
	Doc string `yaml:"doc,omitempty"`

	// Docs lists the replicas that must agree (converged).
	Docs []string `yaml:"docs,omitempty"`

	// Op and Args select trace events (trace_contains, trace_count). The
	// op "change" selects observer deliveries.
	Op   string         `yaml:"op,omitempty"`
	Args map[string]any `yaml:"args,omitempty"`

	// Ops is the expected op order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number of matching events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Path is a JSONPath expression (query, schema). For schema an empty
	// path validates the whole projection.
	Path string `yaml:"path,omitempty"`

	// Expect is the expected projection (snapshot, subset match) or list
	// of matches (query).
	Expect any `yaml:"expect,omitempty"`

	// Schema is inline CUE source and Definition optionally narrows it,
	// for example "#Document" (schema).
	Schema     string `yaml:"schema,omitempty"`
	Definition string `yaml:"definition,omitempty"`
}

// Step operations.
const (
	OpMapSet     = "map.set"
	OpMapRemove  = "map.remove"
	OpMapClear   = "map.clear"
	OpListInsert = "list.insert"
	OpListAppend = "list.append"
	OpListRemove = "list.remove"
	OpListMove   = "list.move"
	OpTextInsert = "text.insert"
	OpTextAppend = "text.append"
	OpTextDelete = "text.delete"
	OpTextFormat = "text.format"
	OpObserve    = "observe"
	OpUndoTrack  = "undo.track"
	OpUndo       = "undo"
	OpRedo       = "redo"
	OpSync       = "sync"
)

// Collection kinds accepted by observe.
const (
	KindMap  = "map"
	KindList = "list"
	KindText = "text"
)

// Assertion types.
const (
	AssertConverged     = "converged"
	AssertSnapshot      = "snapshot"
	AssertQuery         = "query"
	AssertSchema        = "schema"
	AssertPersisted     = "persisted"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML. Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Documents) == 0 {
		return fmt.Errorf("documents list is required and must be non-empty")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	docs := make(map[string]bool, len(s.Documents))
	for i, d := range s.Documents {
		if d.Name == "" {
			return fmt.Errorf("documents[%d]: name is required", i)
		}
		if docs[d.Name] {
			return fmt.Errorf("documents[%d]: duplicate name %q", i, d.Name)
		}
		docs[d.Name] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step, docs); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, docs); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step *Step, docs map[string]bool) error {
	if !docs[step.Doc] {
		return fmt.Errorf("steps[%d]: unknown doc %q", index, step.Doc)
	}

	switch step.Op {
	case OpSync:
		if !docs[step.From] {
			return fmt.Errorf("steps[%d]: unknown from doc %q", index, step.From)
		}
		if step.From == step.Doc {
			return fmt.Errorf("steps[%d]: sync needs two different docs", index)
		}
		return nil
	case OpUndo, OpRedo:
		return nil
	case OpObserve, OpUndoTrack:
		switch step.Kind {
		case KindMap, KindList, KindText:
		default:
			return fmt.Errorf("steps[%d]: %s kind must be map, list or text, got %q", index, step.Op, step.Kind)
		}
	case OpMapSet, OpMapRemove:
		if step.Key == "" {
			return fmt.Errorf("steps[%d]: key is required for %s", index, step.Op)
		}
	case OpTextFormat:
		if len(step.Attrs) == 0 {
			return fmt.Errorf("steps[%d]: attrs are required for %s", index, step.Op)
		}
	case OpMapClear, OpListInsert, OpListAppend, OpListRemove, OpListMove,
		OpTextInsert, OpTextAppend, OpTextDelete:
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}

	if step.Target == "" {
		return fmt.Errorf("steps[%d]: target is required for %s", index, step.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, docs map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertConverged:
		if len(a.Docs) < 2 {
			return fmt.Errorf("assertions[%d]: converged needs at least two docs", index)
		}
		for _, d := range a.Docs {
			if !docs[d] {
				return fmt.Errorf("assertions[%d]: unknown doc %q", index, d)
			}
		}
		return nil
	case AssertTraceContains, AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
		return nil
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
		return nil
	case AssertSnapshot:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for snapshot", index)
		}
	case AssertQuery:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for query", index)
		}
	case AssertSchema:
		if a.Schema == "" {
			return fmt.Errorf("assertions[%d]: schema is required", index)
		}
	case AssertPersisted:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if !docs[a.Doc] {
		return fmt.Errorf("assertions[%d]: unknown doc %q", index, a.Doc)
	}
	return nil
}
