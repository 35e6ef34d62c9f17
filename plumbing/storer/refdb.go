package storer

import (
	"strings"

	"github.com/ketchgit/core/plumbing"
)

// Command is one old-value/new-value reference transition submitted as
// part of a batch. A zero OldID (with an empty OldTarget) places no
// expectation on the reference's current value; a zero NewID deletes it.
type Command struct {
	Name  plumbing.ReferenceName
	OldID plumbing.ObjectID
	NewID plumbing.ObjectID

	// OldTarget/NewTarget are set instead of OldID/NewID when Command
	// updates a symbolic reference rather than a direct one.
	OldTarget plumbing.ReferenceName
	NewTarget plumbing.ReferenceName
	Symbolic  bool
}

// CommandResult is the per-command outcome of a BatchUpdate, mirroring
// git's receive-pack status taxonomy closely enough to drive the same
// UI: ok, a concrete lock failure, or "not attempted because a sibling
// command in the same batch failed".
type CommandResult struct {
	Command Command
	Status  CommandStatus
	Message string
}

type CommandStatus int8

const (
	NotAttempted CommandStatus = iota
	OK
	LockFailure
	RejectedOtherReason
)

// Update is a single-reference mutation handle returned by NewUpdate.
type Update interface {
	SetNew(id plumbing.ObjectID) error
	SetNewTarget(target plumbing.ReferenceName) error
	Commit() error
	Abort() error
}

// BatchUpdate is a multi-reference, all-or-nothing mutation handle
// returned by NewBatchUpdate.
type BatchUpdate interface {
	AddCommand(cmd Command)
	Execute() ([]CommandResult, error)
}

// RefDatabase is the abstract reference store contract every backing
// implementation (a bootstrap loose-ref store, a RefTree, an in-memory
// cache) satisfies identically, per the capability set {exactRef,
// getRefs, newUpdate, newBatchUpdate, peel}.
type RefDatabase interface {
	// ExactRef returns the reference with exactly this name, or nil if
	// absent.
	ExactRef(name plumbing.ReferenceName) (*plumbing.Ref, error)

	// GetRefs returns every reference whose name begins with prefix.
	// prefix must be empty or end in "/"; any other non-empty prefix
	// yields an empty result rather than an error.
	GetRefs(prefix string) (map[plumbing.ReferenceName]*plumbing.Ref, error)

	// GetAdditionalRefs returns references outside the main namespace
	// (MERGE_HEAD, ORIG_HEAD, FETCH_HEAD, and similar).
	GetAdditionalRefs() ([]*plumbing.Ref, error)

	// Peel walks a tag chain to its terminal non-tag object, caching the
	// result on the returned Ref. A non-tag reference is returned
	// unchanged.
	Peel(ref *plumbing.Ref) (*plumbing.Ref, error)

	NewUpdate(name plumbing.ReferenceName, detach bool) (Update, error)
	NewBatchUpdate() (BatchUpdate, error)
	NewRename(from, to plumbing.ReferenceName) (Update, error)

	// IsNameConflicting reports whether name cannot coexist with an
	// existing reference: name is a strict "/"-boundary prefix of one,
	// or one is a strict prefix of name.
	IsNameConflicting(name plumbing.ReferenceName) (bool, error)

	// PerformsAtomicTransactions reports whether NewBatchUpdate applies
	// its commands all-or-nothing.
	PerformsAtomicTransactions() bool
}

// IsNameConflicting implements the shared prefix-boundary rule (§4.5,
// Testable Property #6) against a set of existing reference names, so
// every RefDatabase backend can delegate to it rather than re-deriving
// the boundary arithmetic.
func IsNameConflicting(existing func(yield func(plumbing.ReferenceName) bool), name plumbing.ReferenceName) bool {
	n := string(name)
	conflict := false
	existing(func(other plumbing.ReferenceName) bool {
		o := string(other)
		if o == n {
			return true
		}
		if strings.HasPrefix(n, o+"/") || strings.HasPrefix(o, n+"/") {
			conflict = true
			return false
		}
		return true
	})
	return conflict
}

// GetLeafWithDepthLimit resolves a possibly-symbolic ref to its terminal
// non-symbolic Ref by repeatedly calling lookup, refusing to follow more
// than plumbing.MaxSymbolicRefDepth hops (Testable Property #7).
func GetLeafWithDepthLimit(
	start *plumbing.Ref,
	lookup func(plumbing.ReferenceName) (*plumbing.Ref, error),
) (*plumbing.Ref, error) {
	cur := start
	for depth := 0; cur != nil && cur.IsSymbolic(); depth++ {
		if depth >= plumbing.MaxSymbolicRefDepth {
			return nil, nil
		}
		target := cur.Target()
		if target == nil {
			return nil, nil
		}
		next, err := lookup(target.Name())
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
