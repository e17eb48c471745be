package crdt

import (
	"fmt"

	"github.com/roach88/ycoord/internal/node"
)

// ID identifies one clock tick of one client.
type ID struct {
	Client uint64 `json:"c"`
	Clock  uint64 `json:"k"`
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Client, id.Clock)
}

// stamp orders concurrent writes: higher lamport wins, client breaks ties.
type stamp struct {
	lamport uint64
	client  uint64
}

func (s stamp) less(o stamp) bool {
	if s.lamport != o.lamport {
		return s.lamport < o.lamport
	}
	return s.client < o.client
}

// Kind is the kind of a shared collection.
type Kind uint8

const (
	// KindMap is a key-value map.
	KindMap Kind = iota + 1
	// KindList is an ordered list.
	KindList
	// KindText is a rich text sequence.
	KindText
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindList:
		return "list"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// BranchRef names a branch: a root by name, or a nested branch by the ID
// of the item that created it.
type BranchRef struct {
	Name   string `json:"n,omitempty"`
	Item   ID     `json:"i,omitempty"`
	Nested bool   `json:"x,omitempty"`
}

// String implements fmt.Stringer.
func (r BranchRef) String() string {
	if r.Nested {
		return "#" + r.Item.String()
	}
	return r.Name
}

// OutKind tags the variant held by an Out.
type OutKind uint8

const (
	// OutLeaf is a plain value.
	OutLeaf OutKind = iota + 1
	// OutMap is a nested map.
	OutMap
	// OutList is a nested list.
	OutList
	// OutText is a nested text.
	OutText
	// OutDoc is a subdocument.
	OutDoc
)

// String implements fmt.Stringer.
func (k OutKind) String() string {
	switch k {
	case OutLeaf:
		return "leaf"
	case OutMap:
		return "map"
	case OutList:
		return "list"
	case OutText:
		return "text"
	case OutDoc:
		return "doc"
	default:
		return fmt.Sprintf("out(%d)", uint8(k))
	}
}

// Out is one stored entry of a map or list, as a closed tagged variant.
// Exactly one of Leaf, Branch or Doc is set, according to Kind.
type Out struct {
	Kind   OutKind
	Leaf   node.Node
	Branch *Branch
	Doc    *Doc
}

// IsZero reports whether the Out holds nothing (absent entry).
func (o Out) IsZero() bool {
	return o.Kind == 0
}

// AsLeaf returns the leaf value if o holds one.
func (o Out) AsLeaf() (node.Node, bool) {
	if o.Kind != OutLeaf {
		return nil, false
	}
	return o.Leaf, true
}

// AsBranch returns the nested branch if o holds one of the given kind.
func (o Out) AsBranch(kind Kind) (*Branch, bool) {
	if o.Branch == nil || o.Branch.kind != kind {
		return nil, false
	}
	return o.Branch, true
}

// AsDoc returns the subdocument if o holds one.
func (o Out) AsDoc() (*Doc, bool) {
	if o.Kind != OutDoc {
		return nil, false
	}
	return o.Doc, true
}

func outKindOf(k Kind) OutKind {
	switch k {
	case KindMap:
		return OutMap
	case KindList:
		return OutList
	default:
		return OutText
	}
}
