package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ycoord/internal/node"
)

func TestRunWithGolden_Scenarios(t *testing.T) {
	for _, name := range []string{"map_sync", "text_edit"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestMarshalTrace_Canonical(t *testing.T) {
	trace := []TraceEvent{
		{Seq: 1, Type: EventStep, Doc: "a", Op: OpMapSet, Target: "m", Args: node.Object{"value": node.Int(1), "key": node.String("k")}},
		{Seq: 2, Type: EventChange, Doc: "a", Target: "m", Changes: node.Array{}},
	}

	data, err := MarshalTrace("canon", trace)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"canon","trace":[`+
			`{"args":{"key":"k","value":1},"doc":"a","op":"map.set","seq":1,"target":"m","type":"step"},`+
			`{"changes":[],"doc":"a","seq":2,"target":"m","type":"change"}]}`,
		string(data))
}
