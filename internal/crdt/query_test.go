package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ycoord/internal/node"
)

func queryDoc(t *testing.T) *Doc {
	t.Helper()
	d := newTestDoc(t, 1)
	people := d.GetOrCreate("people", KindMap)
	tags := d.GetOrCreate("tags", KindList)
	title := d.GetOrCreate("title", KindText)
	write(d, func(tx *Txn) {
		tx.MapSet(people, "alice", node.Object{"age": node.Int(30)})
		require.NoError(t, tx.MapSetDoc(people, "attachment", NewDoc(Options{GUID: "sub"})))
		require.NoError(t, tx.ListInsert(tags, 0, strs("a", "b")...))
		require.NoError(t, tx.TextInsert(title, 0, "hi"))
	})
	return d
}

func TestQueryPath(t *testing.T) {
	d := queryDoc(t)

	tests := []struct {
		expr   string
		expect []string
	}{
		{"$.people.alice.age", []string{"30"}},
		{"$.people.alice", []string{`{"age":30}`}},
		{"$.tags[*]", []string{`"a"`, `"b"`}},
		{"$.tags[1]", []string{`"b"`}},
		{"$.title", []string{`"hi"`}},
		{"$.people.attachment", []string{"null"}},
		{"$.people.bob", []string{}},
		{"$.tags[5]", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			write(d, func(tx *Txn) {
				got, err := tx.QueryPath(tt.expr)
				require.NoError(t, err)
				assert.Equal(t, tt.expect, got)
			})
		})
	}
}

func TestQueryPath_Malformed(t *testing.T) {
	d := queryDoc(t)
	write(d, func(tx *Txn) {
		_, err := tx.QueryPath("$[")
		require.Error(t, err)
		assert.True(t, IsPathError(err))

		var pe *PathError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "$[", pe.Expr)
	})
}

func TestIsMultiPath(t *testing.T) {
	assert.True(t, isMultiPath("$.a[*]"))
	assert.True(t, isMultiPath("$..name"))
	assert.True(t, isMultiPath("$.a[0,1]"))
	assert.True(t, isMultiPath("$.a[0:2]"))
	assert.True(t, isMultiPath("$.a[?(@.x > 1)]"))
	assert.False(t, isMultiPath("$.a[0]"))
	assert.False(t, isMultiPath(`$["a,b"]`))
}

func TestSnapshot(t *testing.T) {
	d := queryDoc(t)
	assert.JSONEq(t,
		`{"people":{"alice":{"age":30},"attachment":null},"tags":["a","b"],"title":"hi"}`,
		snapshotJSON(t, d))
}
