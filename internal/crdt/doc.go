package crdt

import (
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Options configure a Doc at construction. They are immutable afterwards,
// except ShouldLoad which flips to true when a subdocument is loaded.
type Options struct {
	// GUID is the globally unique document identifier. Generated when empty.
	GUID string `yaml:"guid" json:"guid,omitempty"`

	// ClientID identifies this replica in operation IDs. Random when zero.
	ClientID uint64 `yaml:"client_id" json:"client_id,omitempty"`

	// AutoLoad marks a subdocument to be loaded as soon as a replica
	// integrates it.
	AutoLoad bool `yaml:"auto_load" json:"auto_load,omitempty"`

	// ShouldLoad reports whether the document's content should be fetched.
	ShouldLoad bool `yaml:"should_load" json:"should_load,omitempty"`
}

// DefaultOptions returns options for a standalone document that should load.
func DefaultOptions() Options {
	return Options{ShouldLoad: true}
}

// NewGUID returns a fresh document GUID (UUIDv4).
func NewGUID() string {
	return uuid.NewString()
}

// newClientID returns a random non-zero client id that fits in 53 bits so
// it survives a JSON round trip through float64 consumers.
func newClientID() uint64 {
	for {
		if id := rand.Uint64() >> 11; id != 0 {
			return id
		}
	}
}

// Doc is one replicated document instance.
type Doc struct {
	guid     string
	clientID uint64
	autoLoad bool

	mu         sync.Mutex // guards roots, branches, parent, shouldLoad
	roots      map[string]*Branch
	branches   map[BranchRef]*Branch
	parent     *Doc
	shouldLoad bool

	destroyed atomic.Bool
	obs       observers

	// Everything below is only touched inside a Txn.
	items   map[ID]*item
	lamport uint64
	sv      map[uint64]uint64
	log     map[uint64][]*op
	pending []*op
	subdocs map[string]*Doc
	// subdocOwner maps a subdocument GUID to the item that holds it.
	subdocOwner map[string]ID
	active      *Txn
}

// NewDoc creates a document.
func NewDoc(opts Options) *Doc {
	if opts.GUID == "" {
		opts.GUID = NewGUID()
	}
	if opts.ClientID == 0 {
		opts.ClientID = newClientID()
	}
	return &Doc{
		guid:       opts.GUID,
		clientID:   opts.ClientID,
		autoLoad:   opts.AutoLoad,
		shouldLoad: opts.ShouldLoad,
		roots:      make(map[string]*Branch),
		branches:   make(map[BranchRef]*Branch),
		items:      make(map[ID]*item),
		sv:         make(map[uint64]uint64),
		log:        make(map[uint64][]*op),
		subdocs:    make(map[string]*Doc),

		subdocOwner: make(map[string]ID),
	}
}

// GUID returns the document's globally unique identifier.
func (d *Doc) GUID() string {
	return d.guid
}

// ClientID returns the replica id used to stamp local operations.
func (d *Doc) ClientID() uint64 {
	return d.clientID
}

// AutoLoad reports the auto-load flag.
func (d *Doc) AutoLoad() bool {
	return d.autoLoad
}

// ShouldLoad reports whether the document should be loaded.
func (d *Doc) ShouldLoad() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shouldLoad
}

// Options returns the options the document currently reports.
func (d *Doc) Options() Options {
	return Options{
		GUID:       d.guid,
		ClientID:   d.clientID,
		AutoLoad:   d.autoLoad,
		ShouldLoad: d.ShouldLoad(),
	}
}

// Parent returns the document this one is nested in, or nil for a root or a
// subdocument that has not been integrated yet.
func (d *Doc) Parent() *Doc {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parent
}

// setParent binds d to p. Returns false if d already has a parent.
func (d *Doc) setParent(p *Doc) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.parent != nil {
		return false
	}
	d.parent = p
	return true
}

// SameAs reports instance identity. Two documents with identical content
// are never the same unless they are the same instance.
func (d *Doc) SameAs(other *Doc) bool {
	return d == other
}

// Destroyed reports whether the document has been destroyed.
func (d *Doc) Destroyed() bool {
	return d.destroyed.Load()
}

// GetOrCreate returns the root collection called name, creating it with the
// given kind on first use. The same name always yields the same Branch.
//
// Panics if the name already holds a root of another kind: a root's kind is
// part of the application schema, and a conflict is a programming error.
func (d *Doc) GetOrCreate(name string, kind Kind) *Branch {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b, ok := d.roots[name]; ok {
		if b.kind != kind {
			panic("crdt: root " + name + " is a " + b.kind.String() + ", not a " + kind.String())
		}
		return b
	}
	b := d.rootLocked(name, kind)
	return b
}

// Root returns an existing root branch by name.
func (d *Doc) Root(name string) (*Branch, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.roots[name]
	return b, ok
}

// RootNames returns the names of all root collections, sorted.
func (d *Doc) RootNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.roots))
	for name := range d.roots {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (d *Doc) rootLocked(name string, kind Kind) *Branch {
	ref := BranchRef{Name: name}
	b := newBranch(d, ref, kind)
	d.roots[name] = b
	d.branches[ref] = b
	return b
}

func (d *Doc) branch(ref BranchRef) (*Branch, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.branches[ref]
	return b, ok
}

func (d *Doc) registerBranch(b *Branch) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.branches[b.ref] = b
}

// nextStamp returns the ID and lamport timestamp of the next local
// operation. Integration advances both.
func (d *Doc) nextStamp() (ID, uint64) {
	return ID{Client: d.clientID, Clock: d.sv[d.clientID]}, d.lamport + 1
}
