package reftree

import (
	"fmt"

	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/object"
	"github.com/ketchgit/core/plumbing/storer"
)

// NewBatchUpdate implements storer.RefDatabase.
func (d *Database) NewBatchUpdate() (storer.BatchUpdate, error) {
	return &batchUpdate{db: d}, nil
}

type batchUpdate struct {
	db   *Database
	cmds []storer.Command
}

func (b *batchUpdate) AddCommand(cmd storer.Command) { b.cmds = append(b.cmds, cmd) }

// Execute runs the atomic batch-update algorithm of §4.6: validate names,
// apply every command against a speculative copy of the tree, and on any
// conflict reject the WHOLE batch — the first offending command carries
// its specific reason, every other NOT_ATTEMPTED command is marked
// REJECTED_OTHER_REASON (Testable Property #5). A clean batch is
// committed by writing a new tree, a new log-entry commit, and an update
// of the bootstrap anchor to that commit. The anchor update is a plain
// overwrite: it is not compared against the anchor's previous value.
func (b *batchUpdate) Execute() ([]storer.CommandResult, error) {
	results := make([]storer.CommandResult, len(b.cmds))
	for i, cmd := range b.cmds {
		results[i] = storer.CommandResult{Command: cmd, Status: storer.NotAttempted}
	}

	d := b.db
	d.mu.Lock()
	defer d.mu.Unlock()

	tree, prevCommitID, err := d.loadLocked()
	if err != nil {
		return nil, err
	}

	if rejectAt, reason := b.reject(tree); rejectAt >= 0 {
		abortBatch(results, rejectAt, reason)
		return results, nil
	}

	working := tree.clone()
	for i, cmd := range b.cmds {
		if err := applyCommand(working, cmd); err != nil {
			abortBatch(results, i, err.Error())
			return results, nil
		}
	}

	rootID, err := working.Build()
	if err != nil {
		return nil, fmt.Errorf("reftree: writing tree: %w", err)
	}

	commit := &object.Commit{
		TreeID:    rootID,
		Author:    d.identity,
		Committer: d.identity,
		Message:   "ketch log entry\n",
	}
	if !prevCommitID.IsZero() {
		commit.ParentIDs = []plumbing.ObjectID{prevCommitID}
	}
	newCommitID, err := d.store.PutCommit(commit)
	if err != nil {
		return nil, fmt.Errorf("reftree: writing commit: %w", err)
	}

	update, err := d.bootstrap.NewUpdate(d.committedRef, false)
	if err != nil {
		return nil, err
	}
	if err := update.SetNew(newCommitID); err != nil {
		return nil, err
	}
	if err := update.Commit(); err != nil {
		abortBatch(results, 0, "transaction aborted: "+err.Error())
		return results, nil
	}

	d.tree = working
	for i := range results {
		results[i].Status = storer.OK
	}
	return results, nil
}

// reject validates every command's name and old-value expectation, and
// every create/update's name against the prefix-boundary rule, applying
// commands one at a time to a simulated copy of tree so a batch that
// creates both refs/heads/a and refs/heads/a/b is caught regardless of
// which command comes first (Testable Property #6). Returns the index
// of the first rejected command, or -1 if the batch may proceed.
func (b *batchUpdate) reject(tree *RefTree) (int, string) {
	sim := tree.clone()
	for i, cmd := range b.cmds {
		if !plumbing.IsValidReferenceName(cmd.Name) {
			return i, fmt.Sprintf("invalid reference name %q", cmd.Name)
		}
		if b.db.policy == RejectRefsTxn && cmd.Name.IsTransactional() {
			return i, fmt.Sprintf("reference %s is reserved for the bootstrap anchor", cmd.Name)
		}
		current := sim.Ref(cmd.Name)
		if !cmd.OldID.IsZero() || cmd.OldTarget != "" {
			if current == nil {
				return i, fmt.Sprintf("reference %s does not exist", cmd.Name)
			}
			if cmd.Symbolic || cmd.OldTarget != "" {
				if !current.IsSymbolic() || current.Target().Name() != cmd.OldTarget {
					return i, fmt.Sprintf("reference %s changed underneath the caller", cmd.Name)
				}
			} else if current.IsSymbolic() || !current.ObjectID().Equal(cmd.OldID) {
				return i, fmt.Sprintf("reference %s changed underneath the caller", cmd.Name)
			}
		}

		deleting := (cmd.Symbolic && cmd.NewTarget == "") || (!cmd.Symbolic && cmd.NewID.IsZero())
		if !deleting && sim.IsNameConflicting(cmd.Name) {
			return i, fmt.Sprintf("reference %s conflicts with an existing reference name", cmd.Name)
		}

		if err := applyCommand(sim, cmd); err != nil {
			return i, err.Error()
		}
	}
	return -1, ""
}

func applyCommand(tree *RefTree, cmd storer.Command) error {
	switch {
	case cmd.Symbolic:
		if cmd.NewTarget == "" {
			tree.remove(cmd.Name)
			return nil
		}
		return tree.setSymbolic(cmd.Name, cmd.NewTarget)
	case cmd.NewID.IsZero():
		tree.remove(cmd.Name)
		return nil
	default:
		tree.set(cmd.Name, cmd.NewID, nil)
		return nil
	}
}

func abortBatch(results []storer.CommandResult, rejectedAt int, reason string) {
	for i := range results {
		if i == rejectedAt {
			results[i].Status = storer.LockFailure
			results[i].Message = reason
		} else {
			results[i].Status = storer.RejectedOtherReason
			results[i].Message = "transaction aborted"
		}
	}
}
