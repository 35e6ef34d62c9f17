package reftree

import (
	"fmt"
	"sync"

	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/object"
	"github.com/ketchgit/core/plumbing/storer"
)

// OverlapPolicy governs how the transactional bootstrap namespace
// (refs/txn/*, which cannot live inside the tree it anchors) interacts
// with references an ordinary caller asks for.
type OverlapPolicy int8

const (
	// ShowAll exposes bootstrap refs under refs/txn/; NewUpdate on that
	// namespace goes straight to the bootstrap database. Commands naming
	// refs/txn/* inside a NewBatchUpdate batch are not rerouted.
	ShowAll OverlapPolicy = iota
	// RejectRefsTxn hides the bootstrap namespace; any update naming
	// refs/txn/* is rejected with a lock failure.
	RejectRefsTxn
	// HideRefsTxn hides the bootstrap namespace from normal traffic but
	// still permits ordinary refs to reuse the refs/txn/ prefix; the
	// bootstrap is reachable only through Bootstrap().
	HideRefsTxn
)

const committedRefDefault plumbing.ReferenceName = "refs/txn/committed"

// Database is the RefTreeDatabase: a RefDatabase whose entire state is
// one committed Git tree, anchored by a bootstrap reference living
// outside that tree.
type Database struct {
	store       ObjectStore
	bootstrap   storer.RefDatabase
	committedRef plumbing.ReferenceName
	policy      OverlapPolicy
	identity    object.Signature

	mu   sync.Mutex
	tree *RefTree // nil until first load
}

// NewDatabase builds a RefTreeDatabase reading/writing trees and commits
// through store, anchored at committedRef in bootstrap (pass "" to use
// the default refs/txn/committed).
func NewDatabase(store ObjectStore, bootstrap storer.RefDatabase, committedRef plumbing.ReferenceName, policy OverlapPolicy, identity object.Signature) *Database {
	if committedRef == "" {
		committedRef = committedRefDefault
	}
	return &Database{store: store, bootstrap: bootstrap, committedRef: committedRef, policy: policy, identity: identity}
}

// Bootstrap returns the underlying bootstrap reference database, for
// HideRefsTxn callers that need explicit access to refs/txn/*.
func (d *Database) Bootstrap() storer.RefDatabase { return d.bootstrap }

func (d *Database) loadLocked() (*RefTree, plumbing.ObjectID, error) {
	ref, err := d.bootstrap.ExactRef(d.committedRef)
	if err != nil {
		return nil, plumbing.ObjectID{}, err
	}
	if ref == nil {
		if d.tree == nil {
			d.tree = New(d.store)
		}
		return d.tree, plumbing.ObjectID{}, nil
	}
	commitID := ref.ObjectID()
	commit, err := d.store.GetCommit(commitID)
	if err != nil {
		return nil, plumbing.ObjectID{}, err
	}
	if d.tree == nil {
		tree, err := Load(d.store, commit.TreeID)
		if err != nil {
			return nil, plumbing.ObjectID{}, err
		}
		d.tree = tree
	}
	return d.tree, commitID, nil
}

// ExactRef implements storer.RefDatabase.
func (d *Database) ExactRef(name plumbing.ReferenceName) (*plumbing.Ref, error) {
	if d.policy == ShowAll && name.IsTransactional() {
		return d.bootstrap.ExactRef(name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	tree, _, err := d.loadLocked()
	if err != nil {
		return nil, err
	}
	return tree.Ref(name), nil
}

// GetRefs implements storer.RefDatabase.
func (d *Database) GetRefs(prefix string) (map[plumbing.ReferenceName]*plumbing.Ref, error) {
	d.mu.Lock()
	tree, _, err := d.loadLocked()
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := tree.Refs(prefix)
	if d.policy == ShowAll {
		extra, err := d.bootstrap.GetRefs(prefix)
		if err != nil {
			return nil, err
		}
		for n, r := range extra {
			out[n] = r
		}
	}
	return out, nil
}

// GetAdditionalRefs implements storer.RefDatabase.
func (d *Database) GetAdditionalRefs() ([]*plumbing.Ref, error) { return nil, nil }

// Peel implements storer.RefDatabase: the RefTree already caches peeled
// values via the "<path> ^" shadow entry, so peeling is a lookup rather
// than a fresh tag-chain walk.
func (d *Database) Peel(ref *plumbing.Ref) (*plumbing.Ref, error) {
	return ref, nil
}

// IsNameConflicting implements storer.RefDatabase (Testable Property #6).
func (d *Database) IsNameConflicting(name plumbing.ReferenceName) (bool, error) {
	refs, err := d.GetRefs("")
	if err != nil {
		return false, err
	}
	return storer.IsNameConflicting(func(yield func(plumbing.ReferenceName) bool) {
		for n := range refs {
			if !yield(n) {
				return
			}
		}
	}, name), nil
}

// PerformsAtomicTransactions implements storer.RefDatabase: yes, every
// batch is validated in full before any command is applied, and commits
// with a single write of the bootstrap anchor.
func (d *Database) PerformsAtomicTransactions() bool { return true }

// NewUpdate implements storer.RefDatabase as a single-command batch.
// Under ShowAll, a refs/txn/* name is updated in the bootstrap database.
func (d *Database) NewUpdate(name plumbing.ReferenceName, detach bool) (storer.Update, error) {
	if d.policy == ShowAll && name.IsTransactional() {
		return d.bootstrap.NewUpdate(name, detach)
	}
	return &singleUpdate{db: d, name: name}, nil
}

// NewRename implements storer.RefDatabase as a batch deleting the old
// name and recreating it at the new one, preserving symbolic-ness.
func (d *Database) NewRename(from, to plumbing.ReferenceName) (storer.Update, error) {
	return &renameUpdate{db: d, from: from, to: to}, nil
}

type singleUpdate struct {
	db       *Database
	name     plumbing.ReferenceName
	newID    plumbing.ObjectID
	newTgt   plumbing.ReferenceName
	symbolic bool
}

func (u *singleUpdate) SetNew(id plumbing.ObjectID) error { u.newID = id; return nil }
func (u *singleUpdate) SetNewTarget(target plumbing.ReferenceName) error {
	u.symbolic = true
	u.newTgt = target
	return nil
}

func (u *singleUpdate) Commit() error {
	b, err := u.db.NewBatchUpdate()
	if err != nil {
		return err
	}
	cmd := storer.Command{Name: u.name, NewID: u.newID, NewTarget: u.newTgt, Symbolic: u.symbolic}
	b.AddCommand(cmd)
	results, err := b.Execute()
	if err != nil {
		return err
	}
	if results[0].Status != storer.OK {
		return fmt.Errorf("reftree: update %s: %s", u.name, results[0].Message)
	}
	return nil
}

func (u *singleUpdate) Abort() error { return nil }

type renameUpdate struct {
	db       *Database
	from, to plumbing.ReferenceName
}

func (r *renameUpdate) SetNew(plumbing.ObjectID) error            { return nil }
func (r *renameUpdate) SetNewTarget(plumbing.ReferenceName) error { return nil }

func (r *renameUpdate) Commit() error {
	ref, err := r.db.ExactRef(r.from)
	if err != nil {
		return err
	}
	if ref == nil {
		return fmt.Errorf("reftree: rename: %s does not exist", r.from)
	}

	b, err := r.db.NewBatchUpdate()
	if err != nil {
		return err
	}
	b.AddCommand(storer.Command{Name: r.from, NewID: plumbing.ZeroHash})
	if ref.IsSymbolic() {
		b.AddCommand(storer.Command{Name: r.to, NewTarget: ref.Target().Name(), Symbolic: true})
	} else {
		b.AddCommand(storer.Command{Name: r.to, NewID: ref.ObjectID()})
	}

	// If HEAD symbolically points at the renamed ref, rewrite it too
	// (Scenario S6).
	if head, err := r.db.ExactRef(plumbing.HEAD); err == nil && head != nil && head.IsSymbolic() && head.Target().Name() == r.from {
		b.AddCommand(storer.Command{Name: plumbing.HEAD, NewTarget: r.to, Symbolic: true})
	}

	results, err := b.Execute()
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Status != storer.OK {
			return fmt.Errorf("reftree: rename %s -> %s: %s", r.from, r.to, res.Message)
		}
	}
	return nil
}

func (r *renameUpdate) Abort() error { return nil }
