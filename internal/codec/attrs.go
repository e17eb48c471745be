package codec

import (
	"fmt"
	"maps"

	"github.com/roach88/ycoord/internal/node"
)

// Attrs is a set of text formatting attributes. Keys are unordered; values
// are arbitrary JSON leaves. A nil value in a format operation removes the
// attribute.
type Attrs map[string]any

// EncodeAttrs converts attributes to a node.Object. Nil and empty Attrs
// encode to a nil Object.
func EncodeAttrs(a Attrs) (node.Object, error) {
	if len(a) == 0 {
		return nil, nil
	}
	obj := make(node.Object, len(a))
	for k, v := range a {
		n, err := Encode(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		obj[k] = n
	}
	return obj, nil
}

// DecodeAttrs converts a node.Object back into Attrs with plain Go values.
// Returns nil for an empty object.
func DecodeAttrs(obj node.Object) Attrs {
	if len(obj) == 0 {
		return nil
	}
	a := make(Attrs, len(obj))
	for k, v := range obj {
		a[k] = node.ToAny(v)
	}
	return a
}

// Equal reports whether two attribute sets hold the same keys and values,
// ignoring order. Nil and empty are equal.
func (a Attrs) Equal(b Attrs) bool {
	if len(a) != len(b) {
		return false
	}
	ea, err := EncodeAttrs(a)
	if err != nil {
		return false
	}
	eb, err := EncodeAttrs(b)
	if err != nil {
		return false
	}
	return node.Equal(ea, eb)
}

// Clone returns a shallow copy.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}
