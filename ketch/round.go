package ketch

import (
	"fmt"

	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/object"
	"github.com/ketchgit/core/plumbing/storer"
)

// Round is one distributed attempt to append one log entry: an election
// (advances the term, no content change) or a proposal (applies queued
// reference commands). Both are created under the leader's lock but run
// Start off it; Success runs back under the lock, invoked only by the
// leader's own quorum tally.
type Round interface {
	// Start builds the round's log-entry commit and fans it out to
	// every replica. It must not be called while leader.lock is held.
	Start() error
	// Success finalizes the round once a quorum has accepted its head.
	// Called only while leader.lock is held.
	Success()
}

// ElectionRound creates a content-free commit that merely advances the
// term; its success promotes the leader from CANDIDATE to LEADER.
type ElectionRound struct {
	leader *KetchLeader
}

// NewElectionRound builds an election round for leader.
func NewElectionRound(leader *KetchLeader) *ElectionRound {
	return &ElectionRound{leader: leader}
}

// Start implements Round.
func (r *ElectionRound) Start() error {
	l := r.leader

	l.mu.Lock()
	parent := l.head
	tree := l.cachedTree
	l.mu.Unlock()

	treeID, err := tree.Build()
	if err != nil {
		return fmt.Errorf("ketch: election round: building tree: %w", err)
	}

	commit := &object.Commit{
		TreeID:    treeID,
		Author:    l.identity,
		Committer: l.identity,
		Message:   fmt.Sprintf("ketch election term %d\n", l.term+1),
	}
	if !parent.IsZero() {
		commit.ParentIDs = []plumbing.ObjectID{parent.ID}
	}

	commitID, err := l.store.PutCommit(commit)
	if err != nil {
		return fmt.Errorf("ketch: election round: writing commit: %w", err)
	}

	l.runAsync(LogIndex{ID: commitID, Position: parent.Position + 1}, r)
	return nil
}

// Success implements Round. Called under leader.lock.
func (r *ElectionRound) Success() {
	l := r.leader
	l.term++
	if l.role == Candidate {
		l.role = Leader
	}
}

// ProposalRound bundles a FIFO batch of queued proposals into one
// log-entry commit. Every proposal's commands were already applied to
// the leader's cached RefTree speculatively when it was enqueued
// (Propose); Start only needs to persist that already-applied
// state and fan it out.
type ProposalRound struct {
	leader    *KetchLeader
	proposals []*Proposal
}

// NewProposalRound builds a round over proposals, in submission order.
func NewProposalRound(leader *KetchLeader, proposals []*Proposal) *ProposalRound {
	return &ProposalRound{leader: leader, proposals: proposals}
}

// Start implements Round.
func (r *ProposalRound) Start() error {
	l := r.leader

	l.mu.Lock()
	parent := l.head
	tree := l.cachedTree
	l.mu.Unlock()

	for _, p := range r.proposals {
		p.setRunning()
	}

	treeID, err := tree.Build()
	if err != nil {
		return fmt.Errorf("ketch: proposal round: building tree: %w", err)
	}

	commit := &object.Commit{
		TreeID:    treeID,
		Author:    l.identity,
		Committer: l.identity,
		Message:   fmt.Sprintf("ketch log entry %d\n", parent.Position+1),
	}
	if !parent.IsZero() {
		commit.ParentIDs = []plumbing.ObjectID{parent.ID}
	}

	commitID, err := l.store.PutCommit(commit)
	if err != nil {
		return fmt.Errorf("ketch: proposal round: writing commit: %w", err)
	}

	l.runAsync(LogIndex{ID: commitID, Position: parent.Position + 1}, r)
	return nil
}

// Success implements Round: releases every bundled proposal with an OK
// result per command. Called under leader.lock.
func (r *ProposalRound) Success() {
	for _, p := range r.proposals {
		results := make([]storer.CommandResult, len(p.Commands))
		for i, cmd := range p.Commands {
			results[i] = storer.CommandResult{Command: cmd, Status: storer.OK}
		}
		p.finish(Executed, results, nil)
	}
}
