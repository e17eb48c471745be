package crdt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/roach88/ycoord/internal/node"
)

// Updates are JSON batches of operations. The format is private to this
// package: callers treat payloads as opaque bytes.

type wireUpdate struct {
	Ops []wireOp `json:"ops"`
}

type wireOp struct {
	Type    string          `json:"t"`
	ID      ID              `json:"id"`
	Lamport uint64          `json:"l"`
	Parent  *BranchRef      `json:"p,omitempty"`
	Kind    Kind            `json:"pk,omitempty"`
	Key     *string         `json:"key,omitempty"`
	Origin  *ID             `json:"o,omitempty"`
	Values  []wireContent   `json:"v,omitempty"`
	Text    string          `json:"s,omitempty"`
	Attrs   json.RawMessage `json:"a,omitempty"`
	Targets []ID            `json:"d,omitempty"`
}

type wireContent struct {
	Type     string          `json:"t"`
	Value    json.RawMessage `json:"v,omitempty"`
	Kind     Kind            `json:"k,omitempty"`
	Ref      *BranchRef      `json:"r,omitempty"`
	GUID     string          `json:"g,omitempty"`
	AutoLoad bool            `json:"al,omitempty"`
}

const (
	wireInsert = "ins"
	wireDelete = "del"
	wireFormat = "fmt"

	wireLeaf   = "leaf"
	wireBranch = "branch"
	wireRef    = "ref"
	wireDoc    = "doc"
	wireEmbed  = "embed"
)

func encodeOps(ops []*op) []byte {
	u := wireUpdate{Ops: make([]wireOp, len(ops))}
	for i, o := range ops {
		u.Ops[i] = toWire(o)
	}
	data, err := json.Marshal(u)
	if err != nil {
		panic(fmt.Sprintf("crdt: encode update: %v", err))
	}
	return data
}

func toWire(o *op) wireOp {
	w := wireOp{ID: o.id, Lamport: o.lamport, Targets: o.targets}
	switch o.kind {
	case opInsert:
		w.Type = wireInsert
		parent := o.parent
		w.Parent = &parent
		w.Kind = o.parentKind
		if o.parentKind == KindMap {
			key := o.key
			w.Key = &key
		}
		w.Origin = o.origin
		w.Text = o.text
		for _, c := range o.values {
			w.Values = append(w.Values, contentToWire(c))
		}
	case opDelete:
		w.Type = wireDelete
	case opFormat:
		w.Type = wireFormat
	}
	if len(o.attrs) > 0 {
		w.Attrs = node.MustMarshal(o.attrs)
	}
	return w
}

func contentToWire(c content) wireContent {
	switch c.kind {
	case contentBranch:
		return wireContent{Type: wireBranch, Kind: c.branchKind}
	case contentRef:
		ref := c.ref
		return wireContent{Type: wireRef, Ref: &ref}
	case contentDoc:
		return wireContent{Type: wireDoc, GUID: c.guid, AutoLoad: c.autoLoad}
	case contentEmbed:
		return wireContent{Type: wireEmbed, Value: node.MustMarshal(c.leaf)}
	default:
		return wireContent{Type: wireLeaf, Value: node.MustMarshal(c.leaf)}
	}
}

func validKind(k Kind) bool {
	return k >= KindMap && k <= KindText
}

func decodeUpdate(data []byte) ([]*op, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var u wireUpdate
	if err := dec.Decode(&u); err != nil {
		return nil, decodeErr("invalid JSON", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, decodeErr("trailing data", nil)
	}
	ops := make([]*op, len(u.Ops))
	for i, w := range u.Ops {
		o, err := fromWire(w)
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("op %d", i), err)
		}
		ops[i] = o
	}
	return ops, nil
}

func fromWire(w wireOp) (*op, error) {
	if w.ID.Client == 0 {
		return nil, fmt.Errorf("missing client id")
	}
	o := &op{id: w.ID, lamport: w.Lamport, targets: w.Targets}
	if len(w.Attrs) > 0 {
		n, err := node.Parse(w.Attrs)
		if err != nil {
			return nil, fmt.Errorf("attributes: %w", err)
		}
		obj, ok := n.(node.Object)
		if !ok {
			return nil, fmt.Errorf("attributes must be an object")
		}
		o.attrs = obj
	}

	switch w.Type {
	case wireInsert:
		o.kind = opInsert
		if w.Parent == nil || !validKind(w.Kind) {
			return nil, fmt.Errorf("insert without a valid parent")
		}
		if !w.Parent.Nested && w.Parent.Name == "" {
			return nil, fmt.Errorf("insert into unnamed root")
		}
		o.parent, o.parentKind = *w.Parent, w.Kind
		o.origin = w.Origin
		o.text = w.Text
		for j, wc := range w.Values {
			c, err := contentFromWire(wc)
			if err != nil {
				return nil, fmt.Errorf("value %d: %w", j, err)
			}
			o.values = append(o.values, c)
		}
		switch {
		case o.text != "" && len(o.values) > 0:
			return nil, fmt.Errorf("insert carries both text and values")
		case o.length() == 0:
			return nil, fmt.Errorf("empty insert")
		case o.text != "" && o.parentKind != KindText:
			return nil, fmt.Errorf("text insert into a %s", o.parentKind)
		case o.parentKind == KindMap:
			if w.Key == nil || len(o.values) != 1 || o.origin != nil {
				return nil, fmt.Errorf("malformed map insert")
			}
			o.key = *w.Key
		case w.Key != nil:
			return nil, fmt.Errorf("key on a sequence insert")
		}
	case wireDelete, wireFormat:
		o.kind = opDelete
		if w.Type == wireFormat {
			o.kind = opFormat
			if len(o.attrs) == 0 {
				return nil, fmt.Errorf("format without attributes")
			}
		}
		if len(o.targets) == 0 {
			return nil, fmt.Errorf("%s without targets", w.Type)
		}
	default:
		return nil, fmt.Errorf("unknown op type %q", w.Type)
	}
	return o, nil
}

func contentFromWire(w wireContent) (content, error) {
	switch w.Type {
	case wireLeaf, wireEmbed:
		if len(w.Value) == 0 {
			return content{}, fmt.Errorf("%s without value", w.Type)
		}
		n, err := node.Parse(w.Value)
		if err != nil {
			return content{}, err
		}
		kind := contentLeaf
		if w.Type == wireEmbed {
			kind = contentEmbed
		}
		return content{kind: kind, leaf: n}, nil
	case wireBranch:
		if !validKind(w.Kind) {
			return content{}, fmt.Errorf("branch of unknown kind %d", w.Kind)
		}
		return content{kind: contentBranch, branchKind: w.Kind}, nil
	case wireRef:
		if w.Ref == nil || !w.Ref.Nested {
			return content{}, fmt.Errorf("reference to a non-nested branch")
		}
		return content{kind: contentRef, ref: *w.Ref}, nil
	case wireDoc:
		if w.GUID == "" {
			return content{}, fmt.Errorf("subdocument without guid")
		}
		return content{kind: contentDoc, guid: w.GUID, autoLoad: w.AutoLoad}, nil
	}
	return content{}, fmt.Errorf("unknown content type %q", w.Type)
}

// StateVector encodes, per client, the next clock this replica expects.
func (tx *Txn) StateVector() []byte {
	tx.checkReadable()
	sv := make(map[string]uint64, len(tx.doc.sv))
	for client, clock := range tx.doc.sv {
		sv[strconv.FormatUint(client, 10)] = clock
	}
	data, err := json.Marshal(sv)
	if err != nil {
		panic(fmt.Sprintf("crdt: encode state vector: %v", err))
	}
	return data
}

func decodeStateVector(data []byte) (map[uint64]uint64, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var raw map[string]uint64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, decodeErr("invalid state vector", err)
	}
	sv := make(map[uint64]uint64, len(raw))
	for k, v := range raw {
		client, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return nil, decodeErr("invalid state vector client", err)
		}
		sv[client] = v
	}
	return sv, nil
}

// EncodeDiff encodes every integrated operation the holder of remoteSV has
// not seen. A nil or empty state vector yields the whole document state.
func (tx *Txn) EncodeDiff(remoteSV []byte) ([]byte, error) {
	tx.checkReadable()
	sv, err := decodeStateVector(remoteSV)
	if err != nil {
		return nil, err
	}
	d := tx.doc
	clients := make([]uint64, 0, len(d.log))
	for c := range d.log {
		clients = append(clients, c)
	}
	slices.Sort(clients)

	var ops []*op
	for _, c := range clients {
		seen := sv[c]
		for _, o := range d.log[c] {
			if o.id.Clock+o.length() > seen {
				ops = append(ops, o)
			}
		}
	}
	return encodeOps(ops), nil
}

// EncodeUpdate encodes the operations integrated by this transaction so far.
func (tx *Txn) EncodeUpdate() []byte {
	tx.checkReadable()
	return encodeOps(tx.ops)
}

// ApplyUpdate integrates a remote update. The payload is fully decoded and
// validated before anything is applied; a *DecodeError leaves the document
// unchanged. Operations whose dependencies are missing are kept and retried
// on later applies.
func (tx *Txn) ApplyUpdate(update []byte) error {
	tx.checkWritable()
	ops, err := decodeUpdate(update)
	if err != nil {
		return err
	}
	return tx.applyOps(ops)
}

// ApplyUpdates integrates several updates as one. Every payload is decoded
// and the whole batch validated before any operation is applied, so a
// *DecodeError in any of them leaves the document unchanged. The error
// message names the zero-based index of the offending update.
func (tx *Txn) ApplyUpdates(updates [][]byte) error {
	tx.checkWritable()
	var all []*op
	for i, u := range updates {
		ops, err := decodeUpdate(u)
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				return decodeErr(fmt.Sprintf("update %d: %s", i, de.Message), de.Err)
			}
			return err
		}
		all = append(all, ops...)
	}
	return tx.applyOps(all)
}

func (tx *Txn) applyOps(ops []*op) error {
	if err := tx.doc.checkRoots(ops); err != nil {
		return err
	}
	d := tx.doc
	for _, o := range ops {
		if d.integrated(o) {
			continue
		}
		d.pending = append(d.pending, o)
	}
	tx.integratePending()
	return nil
}

// checkRoots rejects updates whose root kinds conflict with this replica or
// with each other.
func (d *Doc) checkRoots(ops []*op) error {
	kinds := make(map[string]Kind)
	d.mu.Lock()
	for name, b := range d.roots {
		kinds[name] = b.kind
	}
	d.mu.Unlock()
	for _, o := range ops {
		if o.kind != opInsert || o.parent.Nested {
			continue
		}
		if k, ok := kinds[o.parent.Name]; ok && k != o.parentKind {
			return decodeErr(fmt.Sprintf("root %q is a %s, update writes a %s", o.parent.Name, k, o.parentKind), nil)
		}
		kinds[o.parent.Name] = o.parentKind
	}
	return nil
}
