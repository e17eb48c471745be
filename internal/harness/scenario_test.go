package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "map_sync.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "map_sync", scenario.Name)
	require.Len(t, scenario.Documents, 2)
	require.Len(t, scenario.Steps, 3)
	assert.Equal(t, OpObserve, scenario.Steps[0].Op)
	assert.Equal(t, KindMap, scenario.Steps[0].Kind)
	assert.Equal(t, "dark", scenario.Steps[1].Value)
	assert.Equal(t, "a", scenario.Steps[2].From)
	assert.Equal(t, []string{"a", "b"}, scenario.Assertions[0].Docs)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownFieldRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	content := `
name: typo
description: "misspelled key"
documents:
  - name: a
steps:
  - doc: a
    op: map.set
    target: m
    key: k
    valeu: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
	assert.Contains(t, err.Error(), "valeu")
}

func TestParseScenario_ValuesKeepYAMLTypes(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: typed
description: "values of every shape"
documents:
  - name: a
    guid: custom-guid
    client_id: 42
steps:
  - doc: a
    op: list.append
    target: items
    values: [1, 2.5, "three", true, null, {k: v}, [x]]
`))
	require.NoError(t, err)

	assert.Equal(t, "custom-guid", scenario.Documents[0].GUID)
	assert.Equal(t, uint64(42), scenario.Documents[0].ClientID)
	assert.Equal(t, []any{1, 2.5, "three", true, nil, map[string]any{"k": "v"}, []any{"x"}}, scenario.Steps[0].Values)
}

func TestValidateScenario_Errors(t *testing.T) {
	base := func() *Scenario {
		return &Scenario{
			Name:        "s",
			Description: "d",
			Documents:   []DocumentDecl{{Name: "a"}, {Name: "b"}},
			Steps:       []Step{{Doc: "a", Op: OpMapSet, Target: "m", Key: "k", Value: 1}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(s *Scenario)
		wantErr string
	}{
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"missing description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no documents", func(s *Scenario) { s.Documents = nil }, "documents list is required"},
		{"no steps", func(s *Scenario) { s.Steps = nil }, "steps list is required"},
		{"duplicate document", func(s *Scenario) { s.Documents[1].Name = "a" }, "duplicate name"},
		{"unknown doc", func(s *Scenario) { s.Steps[0].Doc = "z" }, `unknown doc "z"`},
		{"unknown op", func(s *Scenario) { s.Steps[0].Op = "map.frobnicate" }, "unknown op"},
		{"missing target", func(s *Scenario) { s.Steps[0].Target = "" }, "target is required"},
		{"missing key", func(s *Scenario) { s.Steps[0].Key = "" }, "key is required"},
		{"sync to self", func(s *Scenario) { s.Steps[0] = Step{Doc: "a", Op: OpSync, From: "a"} }, "two different docs"},
		{"sync unknown source", func(s *Scenario) { s.Steps[0] = Step{Doc: "a", Op: OpSync, From: "z"} }, "unknown from doc"},
		{"observe bad kind", func(s *Scenario) {
			s.Steps[0] = Step{Doc: "a", Op: OpObserve, Target: "m", Kind: "tree"}
		}, "observe kind"},
		{"undo.track without target", func(s *Scenario) {
			s.Steps[0] = Step{Doc: "a", Op: OpUndoTrack, Kind: KindMap}
		}, "target is required"},
		{"undo.track bad kind", func(s *Scenario) {
			s.Steps[0] = Step{Doc: "a", Op: OpUndoTrack, Target: "m"}
		}, "undo.track kind"},
		{"undo unknown doc", func(s *Scenario) {
			s.Steps[0] = Step{Doc: "z", Op: OpUndo}
		}, `unknown doc "z"`},
		{"format without attrs", func(s *Scenario) {
			s.Steps[0] = Step{Doc: "a", Op: OpTextFormat, Target: "t", Len: 1}
		}, "attrs are required"},
		{"converged single doc", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertConverged, Docs: []string{"a"}}}
		}, "at least two docs"},
		{"query without path", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertQuery, Doc: "a"}}
		}, "path is required"},
		{"snapshot unknown doc", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertSnapshot, Doc: "z", Expect: map[string]any{}}}
		}, `unknown doc "z"`},
		{"unknown assertion", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: "final_state"}}
		}, "unknown assertion type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			err := validateScenario(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	require.NoError(t, validateScenario(base()))
}
