package harness

import "github.com/roach88/ycoord/internal/node"

// Trace event types.
const (
	EventStep   = "step"
	EventChange = "change"
)

// TraceEvent is one entry of a scenario trace: either a step that was
// applied, or a batch of changes delivered to an observer.
type TraceEvent struct {
	Seq     int64       `json:"seq"`
	Type    string      `json:"type"`
	Doc     string      `json:"doc"`
	Op      string      `json:"op,omitempty"`
	Target  string      `json:"target,omitempty"`
	Args    node.Object `json:"args,omitempty"`
	Changes node.Array  `json:"changes,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// toNode converts the event for canonical serialization.
func (e TraceEvent) toNode() node.Object {
	obj := node.Object{
		"seq":  node.Int(e.Seq),
		"type": node.String(e.Type),
		"doc":  node.String(e.Doc),
	}
	if e.Op != "" {
		obj["op"] = node.String(e.Op)
	}
	if e.Target != "" {
		obj["target"] = node.String(e.Target)
	}
	if len(e.Args) > 0 {
		obj["args"] = e.Args
	}
	if e.Changes != nil {
		obj["changes"] = e.Changes
	}
	if e.Error != "" {
		obj["error"] = node.String(e.Error)
	}
	return obj
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step and assertion succeeded.
	Pass bool `json:"pass"`

	// Trace holds steps and observed changes in the order they happened.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Fingerprints maps each replica name to its final projection hash.
	Fingerprints map[string]string `json:"fingerprints,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:         true,
		Trace:        []TraceEvent{},
		Errors:       []string{},
		Fingerprints: make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
