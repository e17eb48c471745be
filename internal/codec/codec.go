// Package codec bridges typed application values and engine Nodes.
//
// Encoding is structural: a value is serialized through its encoding/json
// field names and parsed into a node.Node. Decoding runs the inverse and
// reports structural mismatches as absence rather than as errors, so that
// probing a heterogeneous collection never has side effects.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/roach88/ycoord/internal/node"
)

// Encode serializes v into its canonical Node form.
func Encode[V any](v V) (node.Node, error) {
	if n, ok := any(v).(node.Node); ok {
		return n, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	n, err := node.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return n, nil
}

// Decode converts n back into a V.
//
// Returns (zero, false) when n does not match V structurally: wrong JSON
// kind, a field of the wrong type, or an object carrying fields V does not
// declare. A nil Node is absent for every V.
func Decode[V any](n node.Node) (V, bool) {
	var zero V
	if n == nil {
		return zero, false
	}
	if _, ok := any(zero).(node.Node); ok || isNodeInterface[V]() {
		if v, ok := n.(V); ok {
			return v, true
		}
	}

	if _, isNull := n.(node.Null); isNull && !nullable[V]() {
		return zero, false
	}

	data, err := node.Marshal(n)
	if err != nil {
		return zero, false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var v V
	if err := dec.Decode(&v); err != nil {
		return zero, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return zero, false
	}
	return v, true
}

// isNodeInterface reports whether V is the node.Node interface itself.
func isNodeInterface[V any]() bool {
	var p *V
	_, ok := any(p).(*node.Node)
	return ok
}

// nullable reports whether JSON null is a meaningful V.
func nullable[V any]() bool {
	switch reflect.TypeFor[V]().Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	}
	return false
}

// MustEncode is Encode for values known to be encodable. Panics on error.
func MustEncode[V any](v V) node.Node {
	n, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return n
}
