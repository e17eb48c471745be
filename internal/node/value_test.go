package node

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeSealed(t *testing.T) {
	var _ Node = Null{}
	var _ Node = String("test")
	var _ Node = Int(42)
	var _ Node = Float(1.5)
	var _ Node = Bool(true)
	var _ Node = Array{String("a"), Int(1)}
	var _ Node = Object{"key": String("value")}
}

func TestObjectSortedKeysUTF16Order(t *testing.T) {
	obj := Object{
		"a":  Int(1),
		"A":  Int(2),
		"aa": Int(3),
		"aA": Int(4),
		"Aa": Int(5),
		"AA": Int(6),
	}

	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestCompareUTF16SurrogatesSortBeforePrivateUse(t *testing.T) {
	// U+1F600 encodes as D83D DE00 in UTF-16, which sorts before U+E000.
	// UTF-8 byte order puts it after.
	assert.Equal(t, -1, CompareUTF16("\U0001F600", "\uE000"))
	assert.Equal(t, 1, CompareUTF16("\uE000", "\U0001F600"))
	assert.Equal(t, 0, CompareUTF16("x", "x"))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Node
	}{
		{"null", `null`, Null{}},
		{"string", `"hi"`, String("hi")},
		{"int", `42`, Int(42)},
		{"negative int", `-7`, Int(-7)},
		{"float", `1.25`, Float(1.25)},
		{"exponent", `1e3`, Float(1000)},
		{"max int64", `9223372036854775807`, Int(math.MaxInt64)},
		{"above int64", `9223372036854775808`, Uint(1 << 63)},
		{"max uint64", `18446744073709551615`, Uint(math.MaxUint64)},
		{"above uint64", `18446744073709551616`, Float(1 << 64)},
		{"bool", `true`, Bool(true)},
		{"array", `[1,"a",null]`, Array{Int(1), String("a"), Null{}}},
		{"object", `{"b":{"c":false},"a":[]}`, Object{"a": Array{}, "b": Object{"c": Bool(false)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.in))
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "got %#v", got)
		})
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, in := range []string{``, `{`, `[1,]`, `1 2`} {
		_, err := Parse([]byte(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestMarshalSortsKeys(t *testing.T) {
	obj := Object{"zebra": Int(1), "apple": Array{Bool(true), Float(0.5)}, "mid": Null{}}

	data, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"apple":[true,0.5],"mid":null,"zebra":1}`, string(data))
}

func TestMarshalParseRoundTrip(t *testing.T) {
	values := []Node{
		Null{},
		String("héllo <b>"),
		Int(-9007199254740993),
		Float(3.14159),
		Array{Object{"k": String("v")}, Array{}},
		Object{"nested": Object{"deep": Array{Int(1), Int(2)}}},
	}

	for _, v := range values {
		data, err := Marshal(v)
		require.NoError(t, err)
		back, err := Parse(data)
		require.NoError(t, err)
		assert.True(t, Equal(v, back), "round trip of %s", data)
	}
}

func TestToAnyFromAny(t *testing.T) {
	n := Object{"a": Array{Int(1), Float(2.5), String("x"), Bool(false), Null{}}}

	plain := ToAny(n)
	assert.Equal(t, map[string]any{"a": []any{int64(1), 2.5, "x", false, nil}}, plain)

	back, err := FromAny(plain)
	require.NoError(t, err)
	assert.True(t, Equal(n, back))
}

func TestFromAnyRejectsUnsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, Null{}))
	assert.False(t, Equal(Int(1), Float(1)))
	assert.False(t, Equal(Array{Int(1)}, Array{Int(1), Int(2)}))
	assert.False(t, Equal(Object{"a": Int(1)}, Object{"b": Int(1)}))
}

func TestEncodingJSONOfNodes(t *testing.T) {
	n := Object{"a": Array{Int(1), Null{}, String("x")}, "b": Bool(false)}
	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,null,"x"],"b":false}`, string(data))
}
