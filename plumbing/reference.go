package plumbing

import "strings"

// ReferenceName is the fully qualified name of a reference, e.g.
// "refs/heads/main" or the special name "HEAD".
type ReferenceName string

// HEAD is the name of the reference every working tree uses to track
// the currently checked out branch or commit.
const HEAD ReferenceName = "HEAD"

const (
	refPrefix       = "refs/"
	refHeadPrefix   = refPrefix + "heads/"
	refTagPrefix    = refPrefix + "tags/"
	refRemotePrefix = refPrefix + "remotes/"
	refNotePrefix   = refPrefix + "notes/"
	refTxnPrefix    = refPrefix + "txn/"
)

func (n ReferenceName) IsBranch() bool { return strings.HasPrefix(string(n), refHeadPrefix) }
func (n ReferenceName) IsNote() bool   { return strings.HasPrefix(string(n), refNotePrefix) }
func (n ReferenceName) IsRemote() bool { return strings.HasPrefix(string(n), refRemotePrefix) }
func (n ReferenceName) IsTag() bool    { return strings.HasPrefix(string(n), refTagPrefix) }

// IsTransactional reports whether the name lives under the Ketch log
// namespace, refs/txn/. Such names are never user-visible references.
func (n ReferenceName) IsTransactional() bool { return strings.HasPrefix(string(n), refTxnPrefix) }

// PeelSuffix is appended (with a separating space) to a RefTree path to
// store the peeled commit id of an annotated tag alongside the tag entry.
const PeelSuffix = " ^"

// Storage records where a Ref's cached value was last observed. It has no
// bearing on equality or identity of the reference; it only helps callers
// reason about staleness of a read.
type Storage int8

const (
	// NewStorage means the ref has not yet been written anywhere.
	NewStorage Storage = iota
	// LooseStorage means the value was read from a standalone loose ref.
	LooseStorage
	// PackedStorage means the value was read from a packed-refs table.
	PackedStorage
	// NetworkStorage means the value was advertised by a remote peer.
	NetworkStorage
)

func (s Storage) String() string {
	switch s {
	case LooseStorage:
		return "loose"
	case PackedStorage:
		return "packed"
	case NetworkStorage:
		return "network"
	default:
		return "new"
	}
}

// PeelStatus describes whether, and how, a reference resolves through an
// annotated tag chain to a non-tag object.
type PeelStatus int8

const (
	// Unpeeled means the reference has not been examined for a tag chain.
	Unpeeled PeelStatus = iota
	// PeeledTag means the reference names an annotated tag and Peeled
	// returns the id of the first non-tag object in its chain.
	PeeledTag
	// PeeledNonTag means the reference already names a non-tag object, so
	// peeling is a no-op and Peeled returns ObjectID.
	PeeledNonTag
)

// Ref is a named pointer into the object graph. It is either an
// ObjectIdRef (addresses an object directly, possibly a tag with a
// cached peeled value) or a SymbolicRef (addresses another Ref by name).
type Ref struct {
	name    ReferenceName
	storage Storage

	symbolic bool
	target   *Ref // non-nil only when symbolic

	id     ObjectID
	peel   PeelStatus
	peeled ObjectID
}

// NewObjectIDRef builds a direct reference to id, with peeling not yet
// evaluated.
func NewObjectIDRef(name ReferenceName, storage Storage, id ObjectID) *Ref {
	return &Ref{name: name, storage: storage, id: id, peel: Unpeeled}
}

// NewPeeledObjectIDRef builds a direct reference that is already known to
// be an annotated tag, caching the terminal non-tag id it peels to.
func NewPeeledObjectIDRef(name ReferenceName, storage Storage, id, peeled ObjectID) *Ref {
	return &Ref{name: name, storage: storage, id: id, peel: PeeledTag, peeled: peeled}
}

// NewUnpeelableObjectIDRef builds a direct reference known to already name
// a non-tag object, so peeling is a deliberate no-op.
func NewUnpeelableObjectIDRef(name ReferenceName, storage Storage, id ObjectID) *Ref {
	return &Ref{name: name, storage: storage, id: id, peel: PeeledNonTag, peeled: id}
}

// NewSymbolicRef builds a reference whose value is another reference's
// name, to be resolved by a RefDatabase.
func NewSymbolicRef(name ReferenceName, storage Storage, target *Ref) *Ref {
	return &Ref{name: name, storage: storage, symbolic: true, target: target}
}

// Name returns the reference's own name.
func (r *Ref) Name() ReferenceName { return r.name }

// Storage reports where this Ref's value was observed.
func (r *Ref) Storage() Storage { return r.storage }

// IsSymbolic reports whether this Ref points at another reference by name
// rather than directly at an object.
func (r *Ref) IsSymbolic() bool { return r.symbolic }

// ObjectID returns the directly addressed object id. For a symbolic
// reference this is always the zero id; callers should walk to the leaf
// first via GetLeaf.
func (r *Ref) ObjectID() ObjectID {
	if r.symbolic {
		return ZeroHash
	}
	return r.id
}

// Target returns the reference this symbolic ref points at, or nil for a
// direct reference.
func (r *Ref) Target() *Ref { return r.target }

// PeelStatus reports whether this ref's peeled value has been evaluated.
func (r *Ref) PeelStatus() PeelStatus { return r.peel }

// Peeled returns the cached terminal non-tag object id, and whether one is
// known. A symbolic or not-yet-peeled ref reports ok=false.
func (r *Ref) Peeled() (id ObjectID, ok bool) {
	if r.symbolic || r.peel == Unpeeled {
		return ObjectID{}, false
	}
	return r.peeled, true
}

// WithPeeled returns a copy of r with its peeled value cached, for a
// caller that has already walked r's tag chain.
func (r *Ref) WithPeeled(peeled ObjectID) *Ref {
	cp := *r
	cp.peel = PeeledTag
	cp.peeled = peeled
	return &cp
}

// MaxSymbolicRefDepth bounds how many hops GetLeaf will follow before
// declaring the reference broken. Matches the constant used throughout
// the reference layer (§4.5): at or past this depth the walk stops.
const MaxSymbolicRefDepth = 5

// GetLeaf walks symbolic targets to the terminal non-symbolic Ref. It
// returns nil if the chain is longer than MaxSymbolicRefDepth or any hop
// is nil (an unresolved dangling symref).
func (r *Ref) GetLeaf() *Ref {
	cur := r
	for depth := 0; cur != nil && cur.symbolic; depth++ {
		if depth >= MaxSymbolicRefDepth {
			return nil
		}
		cur = cur.target
	}
	return cur
}

// IsValidReferenceName reports whether name satisfies Git's naming rules:
// no empty component, no "..", no control characters, no "@{", not
// ending in "/" or ".lock", and no colon. HEAD is always accepted
// regardless of these rules.
func IsValidReferenceName(name ReferenceName) bool {
	s := string(name)
	if s == string(HEAD) {
		return true
	}
	if s == "" || strings.HasSuffix(s, "/") || strings.HasSuffix(s, ".lock") {
		return false
	}
	if strings.Contains(s, "..") || strings.Contains(s, "@{") || strings.Contains(s, "//") {
		return false
	}
	if strings.HasPrefix(s, "/") || strings.Contains(s, ":") {
		return false
	}
	for _, c := range s {
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	for _, part := range strings.Split(s, "/") {
		if part == "" {
			return false
		}
	}
	return true
}
