package crdt

import (
	"slices"
	"strings"
	"unicode/utf16"

	"github.com/roach88/ycoord/internal/node"
)

type txnState uint8

const (
	txnOpen txnState = iota
	txnCommitting
	txnClosed
)

// Txn is exclusive access to a Doc for one unit of work.
//
// A Txn must not be retained after Commit. Using a closed Txn panics: it
// means a transaction escaped the unit of work that created it.
type Txn struct {
	doc    *Doc
	origin string
	state  txnState

	created map[ID]bool
	deleted map[ID]bool

	changed    []*Branch
	changedSet map[*Branch]bool
	keysBefore map[*Branch]*keyLog
	formatted  map[ID]node.Object
	// formatBefore holds, per formatted item, the visible value each
	// attribute had before its first change. Null stands for absent.
	formatBefore map[ID]node.Object

	// remote is set once the transaction integrates operations from an
	// update.
	remote bool

	added   []*Doc
	loaded  []*Doc
	removed []*Doc

	ops []*op
}

// keyLog remembers, per map branch, the visible entry each key had before
// the transaction first touched it.
type keyLog struct {
	order  []string
	before map[string]*item
}

// Begin opens a transaction tagged with origin.
//
// Panics if another transaction is open on d: callers must serialize
// transactions (see the sched package).
func (d *Doc) Begin(origin string) *Txn {
	if d.active != nil {
		panic("crdt: transaction already open on document " + d.guid)
	}
	tx := &Txn{
		doc:        d,
		origin:     origin,
		created:    make(map[ID]bool),
		deleted:    make(map[ID]bool),
		changedSet: make(map[*Branch]bool),
		keysBefore: make(map[*Branch]*keyLog),
		formatted:  make(map[ID]node.Object),

		formatBefore: make(map[ID]node.Object),
	}
	d.active = tx
	return tx
}

// Doc returns the transaction's document.
func (tx *Txn) Doc() *Doc {
	return tx.doc
}

// Origin returns the tag the transaction was opened with.
func (tx *Txn) Origin() string {
	return tx.origin
}

// Closed reports whether the transaction has been committed.
func (tx *Txn) Closed() bool {
	return tx.state == txnClosed
}

func (tx *Txn) checkReadable() {
	if tx == nil || tx.state == txnClosed {
		panic("crdt: use of a closed transaction")
	}
}

func (tx *Txn) checkWritable() {
	tx.checkReadable()
	if tx.state == txnCommitting {
		panic("crdt: write during commit")
	}
}

func (tx *Txn) checkBranch(b *Branch, kind Kind) {
	tx.checkReadable()
	if b.doc != tx.doc {
		panic("crdt: branch belongs to another document")
	}
	if b.kind != kind {
		panic("crdt: branch is a " + b.kind.String() + ", not a " + kind.String())
	}
}

func (tx *Txn) markChanged(b *Branch) {
	if !tx.changedSet[b] {
		tx.changedSet[b] = true
		tx.changed = append(tx.changed, b)
	}
}

// noteKey records the visible entry of key before its first change.
func (tx *Txn) noteKey(b *Branch, key string) {
	log := tx.keysBefore[b]
	if log == nil {
		log = &keyLog{before: make(map[string]*item)}
		tx.keysBefore[b] = log
	}
	if _, seen := log.before[key]; seen {
		return
	}
	var cur *item
	if it := b.entries[key]; it != nil && !it.deleted {
		cur = it
	}
	log.before[key] = cur
	log.order = append(log.order, key)
	tx.markChanged(b)
}

func (tx *Txn) noteAdded(doc *Doc) {
	if !slices.Contains(tx.added, doc) {
		tx.added = append(tx.added, doc)
	}
}

func (tx *Txn) noteLoaded(doc *Doc) {
	if !slices.Contains(tx.loaded, doc) {
		tx.loaded = append(tx.loaded, doc)
	}
}

func (tx *Txn) noteRemoved(doc *Doc) {
	if i := slices.Index(tx.added, doc); i >= 0 {
		// Added and removed in the same transaction: nothing to report.
		tx.added = slices.Delete(tx.added, i, i+1)
		if j := slices.Index(tx.loaded, doc); j >= 0 {
			tx.loaded = slices.Delete(tx.loaded, j, j+1)
		}
		return
	}
	if !slices.Contains(tx.removed, doc) {
		tx.removed = append(tx.removed, doc)
	}
}

// Commit closes the transaction and delivers native events: branch
// observers first, in the order branches were first changed, then
// subdocument observers, then update observers, then after-transaction
// observers. Commit is idempotent.
//
// Observers may read through tx while it commits; writes panic.
func (tx *Txn) Commit() {
	if tx.state != txnOpen {
		return
	}
	tx.state = txnCommitting
	d := tx.doc

	defer func() {
		tx.state = txnClosed
		d.active = nil
	}()

	for _, b := range tx.changed {
		obs := d.branchObservers(b)
		if len(obs) == 0 {
			continue
		}
		ev := tx.event(b)
		if len(ev.Keys) == 0 && len(ev.Delta) == 0 {
			continue
		}
		for _, o := range obs {
			o.fn(tx, ev)
		}
	}

	if sev := tx.subdocsEvent(); !sev.IsEmpty() {
		for _, o := range d.subdocObservers() {
			o.fn(tx, sev)
		}
	}

	if len(tx.ops) > 0 {
		if obs := d.updateObservers(); len(obs) > 0 {
			update := encodeOps(tx.ops)
			for _, o := range obs {
				o.fn(tx, update)
			}
		}
		for _, o := range d.afterObservers() {
			o.fn(tx)
		}
	}
}

func (tx *Txn) subdocsEvent() SubdocsEvent {
	byGUID := func(a, b *Doc) int { return strings.Compare(a.guid, b.guid) }
	ev := SubdocsEvent{
		Added:   slices.Clone(tx.added),
		Loaded:  slices.Clone(tx.loaded),
		Removed: slices.Clone(tx.removed),
	}
	slices.SortStableFunc(ev.Added, byGUID)
	slices.SortStableFunc(ev.Loaded, byGUID)
	slices.SortStableFunc(ev.Removed, byGUID)
	return ev
}

// event builds the native change record of b for this transaction.
func (tx *Txn) event(b *Branch) *Event {
	ev := &Event{Target: b}
	if b.kind == KindMap {
		ev.Keys = tx.keyChanges(b)
		return ev
	}
	ev.Delta = tx.seqDelta(b)
	return ev
}

func (tx *Txn) keyChanges(b *Branch) []KeyChange {
	log := tx.keysBefore[b]
	if log == nil {
		return nil
	}
	var out []KeyChange
	for _, key := range log.order {
		before := log.before[key]
		var after *item
		if it := b.entries[key]; it != nil && !it.deleted {
			after = it
		}
		switch {
		case before == nil && after == nil:
		case before == nil:
			out = append(out, KeyChange{Key: key, Action: ChangeInserted, New: after.content.out()})
		case after == nil:
			out = append(out, KeyChange{Key: key, Action: ChangeRemoved, Old: before.content.out()})
		case before != after:
			out = append(out, KeyChange{Key: key, Action: ChangeUpdated, Old: before.content.out(), New: after.content.out()})
		}
	}
	return out
}

// seqDelta walks the sequence once, classifying each element as inserted,
// deleted or retained by this transaction, and merges neighbours.
func (tx *Txn) seqDelta(b *Branch) []Delta {
	var out []Delta
	var units []uint16
	var unitAttrs node.Object

	flushText := func() {
		if len(units) == 0 {
			return
		}
		out = append(out, Delta{Op: DeltaInsert, Text: string(utf16.Decode(units)), Attrs: unitAttrs})
		units = nil
		unitAttrs = nil
	}
	push := func(d Delta) {
		flushText()
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Op == d.Op && d.Op != DeltaInsert && node.Equal(last.Attrs, d.Attrs) {
				last.Len += d.Len
				last.Values = append(last.Values, d.Values...)
				return
			}
			if last.Op == DeltaInsert && d.Op == DeltaInsert && last.Embed == nil && d.Embed == nil && last.Text == "" && d.Text == "" {
				last.Values = append(last.Values, d.Values...)
				return
			}
		}
		out = append(out, d)
	}

	for _, it := range b.seq {
		created := tx.created[it.id]
		switch {
		case created && it.deleted:
		case created:
			switch it.content.kind {
			case contentUnit:
				attrs := it.attrObject()
				if len(units) > 0 && !node.Equal(attrs, unitAttrs) {
					flushText()
				}
				units = append(units, it.content.unit)
				unitAttrs = attrs
			case contentEmbed:
				push(Delta{Op: DeltaInsert, Embed: it.content.leaf, Attrs: it.attrObject()})
			default:
				push(Delta{Op: DeltaInsert, Values: []Out{it.content.out()}})
			}
		case tx.deleted[it.id]:
			d := Delta{Op: DeltaDelete, Len: 1}
			if b.kind == KindList {
				d.Values = []Out{it.content.out()}
			}
			push(d)
		case it.deleted:
		default:
			push(Delta{Op: DeltaRetain, Len: 1, Attrs: tx.formatted[it.id]})
		}
	}
	flushText()

	// Trailing plain retains carry no information.
	for len(out) > 0 {
		last := out[len(out)-1]
		if last.Op != DeltaRetain || len(last.Attrs) > 0 {
			break
		}
		out = out[:len(out)-1]
	}
	return out
}
