package crdt

import (
	"context"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/roach88/ycoord/internal/node"
)

// Snapshot returns the JSON projection of every root collection: maps become
// objects, lists arrays, text strings and subdocuments null.
func (tx *Txn) Snapshot() node.Object {
	tx.checkReadable()
	obj := make(node.Object)
	for _, name := range tx.doc.RootNames() {
		b, _ := tx.doc.Root(name)
		obj[name] = project(b)
	}
	return obj
}

// Project returns the JSON projection of a single branch.
func (tx *Txn) Project(b *Branch) node.Node {
	tx.checkReadable()
	return project(b)
}

func project(b *Branch) node.Node {
	switch b.kind {
	case KindMap:
		obj := make(node.Object, len(b.entries))
		for k, it := range b.entries {
			if !it.deleted {
				obj[k] = projectOut(it.content.out())
			}
		}
		return obj
	case KindList:
		items := b.visibleItems()
		arr := make(node.Array, len(items))
		for i, it := range items {
			arr[i] = projectOut(it.content.out())
		}
		return arr
	default:
		return node.String(textString(b))
	}
}

func projectOut(o Out) node.Node {
	switch o.Kind {
	case OutLeaf:
		return o.Leaf
	case OutMap, OutList, OutText:
		return project(o.Branch)
	default:
		return node.Null{}
	}
}

// QueryPath evaluates a JSONPath expression against the document projection
// and returns each match JSON-encoded. A path that selects nothing yields an
// empty result; a malformed path yields a *PathError.
func (tx *Txn) QueryPath(expr string) ([]string, error) {
	tx.checkReadable()
	eval, err := jsonpath.New(expr)
	if err != nil {
		return nil, &PathError{Expr: expr, Err: err}
	}
	res, err := eval(context.Background(), node.ToAny(tx.Snapshot()))
	if err != nil {
		// Unknown keys and out-of-range indexes select nothing.
		return []string{}, nil
	}

	var matches []any
	if isMultiPath(expr) {
		list, ok := res.([]any)
		if !ok {
			return nil, fmt.Errorf("query %q: unexpected result %T", expr, res)
		}
		matches = list
	} else {
		matches = []any{res}
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		n, err := node.FromAny(m)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", expr, err)
		}
		data, err := node.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", expr, err)
		}
		out = append(out, string(data))
	}
	return out, nil
}

// isMultiPath reports whether expr can select more than one value, in which
// case the evaluator returns a list of matches.
func isMultiPath(expr string) bool {
	if strings.Contains(expr, "*") || strings.Contains(expr, "..") || strings.Contains(expr, "?(") {
		return true
	}
	depth := 0
	inQuote := rune(0)
	for _, r := range expr {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			}
		case r == '\'' || r == '"':
			inQuote = r
		case r == '[':
			depth++
		case r == ']':
			depth--
		case depth > 0 && (r == ',' || r == ':'):
			return true
		}
	}
	return false
}
