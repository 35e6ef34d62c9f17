package ketch

import (
	"context"
	"fmt"
	"sync"

	"github.com/ketchgit/core/internal/trace"
	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/object"
	"github.com/ketchgit/core/plumbing/storer"
	"github.com/ketchgit/core/storage/reftree"
	"golang.org/x/sync/errgroup"
)

// Role is a leader's position in the Ketch consensus state machine.
type Role int8

const (
	Candidate Role = iota // has not yet won an election round
	Leader                // has won an election, may run proposal rounds
	Deposed               // lost leadership to a higher term, must step down
	Shutdown              // stopped; rejects everything
)

// validVoterCounts is the set of odd quorum sizes this implementation
// accepts (§6): even counts admit ties, and anything above nine is
// outside the scale this consensus group is meant for.
var validVoterCounts = map[int]bool{1: true, 3: true, 5: true, 7: true, 9: true}

// KetchLeader runs the single-writer side of the Ketch protocol: it owns
// the authoritative RefTree, queues client proposals, and drives rounds
// (elections and proposals) to quorum across its replicas. leader.lock
// (mu) is the one reentrant-in-spirit mutex shared by every operation
// that touches this leader's state; per §5, no call holds it across a
// replica's network I/O.
type KetchLeader struct {
	store      reftree.ObjectStore
	identity   object.Signature
	voters     []*KetchReplica
	followers  []*KetchReplica

	mu         sync.Mutex
	role       Role
	term       uint64
	head       LogIndex
	committed  LogIndex
	cachedTree *reftree.RefTree
	queued     []*Proposal
	running    Round
	runningAck map[*KetchReplica]bool
}

// NewKetchLeader builds a leader starting in CANDIDATE over the given
// voters and followers. Exactly one voter must be the local replica
// (identified by isLocal) and the total voter count must be an odd
// number in {1,3,5,7,9}; both are fatal configuration errors per §6.
func NewKetchLeader(store reftree.ObjectStore, identity object.Signature, tree *reftree.RefTree, voters, followers []*KetchReplica, isLocal func(*KetchReplica) bool) (*KetchLeader, error) {
	if !validVoterCounts[len(voters)] {
		return nil, fmt.Errorf("ketch: invalid voter count %d: must be odd and in {1,3,5,7,9}", len(voters))
	}
	localCount := 0
	for _, v := range voters {
		if isLocal(v) {
			localCount++
		}
	}
	if localCount != 1 {
		return nil, fmt.Errorf("ketch: exactly one voter must be local, found %d", localCount)
	}

	return &KetchLeader{
		store: store, identity: identity, voters: voters, followers: followers,
		role: Candidate, cachedTree: tree,
	}, nil
}

// quorumSize returns the minimum count of accepting voters needed to
// commit, per §4.10: floor(n/2)+1.
func (l *KetchLeader) quorumSize() int { return len(l.voters)/2 + 1 }

// Propose submits commands as a new proposal, speculatively applying
// them to the leader's cached tree so later proposals in the same batch
// see their effect immediately (Scenario S3: a conflicting proposal is
// rejected at this point, before ever reaching a round). It schedules a
// leader task if none is currently running.
func (l *KetchLeader) Propose(commands []storer.Command) (*Proposal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.role == Shutdown || l.role == Deposed {
		return nil, fmt.Errorf("ketch: leader is not accepting proposals (role=%d)", l.role)
	}

	for _, cmd := range commands {
		if err := l.cachedTree.CheckConflict(cmd); err != nil {
			return nil, fmt.Errorf("ketch: proposal rejected: %w", err)
		}
	}
	for _, cmd := range commands {
		if err := l.cachedTree.Apply(cmd); err != nil {
			return nil, fmt.Errorf("ketch: applying proposal: %w", err)
		}
	}

	p := NewProposal(commands)
	l.queued = append(l.queued, p)
	l.maybeStartRoundLocked()
	return p, nil
}

// maybeStartRoundLocked starts the next round — an election if the
// leader hasn't won one yet, otherwise a proposal round over whatever is
// queued — if no round is currently running. Called under mu.
func (l *KetchLeader) maybeStartRoundLocked() {
	if l.running != nil {
		return
	}
	var round Round
	switch {
	case l.role == Candidate:
		round = NewElectionRound(l)
	case len(l.queued) > 0:
		batch := l.queued
		l.queued = nil
		round = NewProposalRound(l, batch)
	default:
		return
	}
	l.running = round
	l.runningAck = map[*KetchReplica]bool{}

	go func() {
		if err := round.Start(); err != nil {
			l.mu.Lock()
			l.running = nil
			l.runningAck = nil
			l.mu.Unlock()
		}
	}()
}

// runAsync installs round as the running round and newHead as the head,
// then fans newHead out to every replica off leader.lock; each replica's
// acceptance is tallied by onReplicaUpdate. Called by a round's Start,
// which must not hold mu.
func (l *KetchLeader) runAsync(newHead LogIndex, round Round) {
	l.mu.Lock()
	l.head = newHead
	l.running = round
	l.runningAck = map[*KetchReplica]bool{}
	l.mu.Unlock()

	req := PushRequest{Name: acceptedRefName, NewID: newHead.ID}

	var g errgroup.Group
	for _, r := range append(append([]*KetchReplica{}, l.voters...), l.followers...) {
		r := r
		r.Enqueue(req)
		g.Go(func() error {
			ctx := context.Background()
			r.StartPush(ctx, func(accepted bool, remote plumbing.ObjectID, err error) {
				if err != nil {
					return
				}
				if accepted && remote.Equal(newHead.ID) {
					l.onReplicaUpdate(r, newHead)
				}
			})
			return nil
		})
	}
	_ = g.Wait()
}

// onReplicaUpdate records that replica has accepted upTo and, once a
// quorum of voters have done so, finalizes the running round: advances
// committed to head, promotes CANDIDATE to LEADER on an election's
// success, releases every bundled proposal on a proposal round's
// success, and schedules the next round if more work is queued
// (Testable Property #8, Scenarios S1-S2). Every replica whose
// acceptance is observed here — whether it is the one that tips the
// round into quorum or a voter/follower acknowledging afterward — is
// handed a commit push telling it the log entry is now safe to publish
// (§2, §4.10).
func (l *KetchLeader) onReplicaUpdate(replica *KetchReplica, upTo LogIndex) {
	l.mu.Lock()

	if upTo.ID != l.head.ID {
		l.mu.Unlock()
		return
	}

	if l.running != nil {
		if replica.IsVoter() {
			l.runningAck[replica] = true
		}
		if l.countAcksLocked() < l.quorumSize() {
			l.mu.Unlock()
			return
		}

		l.committed = upTo
		l.running.Success()
		l.running = nil
		l.runningAck = nil
		trace.Consensus.Printf("ketch: committed log position %d (role=%d)", upTo.Position, l.role)

		l.maybeStartRoundLocked()
	} else if l.committed.ID != upTo.ID {
		// A stray acceptance for a head that was never actually
		// committed (shouldn't happen: upTo.ID == l.head.ID was just
		// checked above, and head only changes when a new round
		// starts). Nothing to publish.
		l.mu.Unlock()
		return
	}

	committedRefs := l.cachedTree.Refs("")
	l.mu.Unlock()

	l.scheduleCommitPush(replica, upTo, committedRefs)
}

// scheduleCommitPush pushes the committed state to r off the leader's
// lock: for CommitMethod == TxnCommitted, a single advance of the
// replica's refs/txn/committed anchor; for CommitMethod == AllRefs, the
// full delta computed by Commit against whatever r currently holds.
func (l *KetchLeader) scheduleCommitPush(r *KetchReplica, upTo LogIndex, committedRefs map[plumbing.ReferenceName]*plumbing.Ref) {
	go func() {
		ctx := context.Background()

		if r.Method == TxnCommitted {
			r.Enqueue(PushRequest{
				Name:        committedRefName,
				NewID:       upTo.ID,
				CommitAlso:  true,
				CommittedID: upTo.ID,
			})
			r.StartPush(ctx, func(bool, plumbing.ObjectID, error) {})
			return
		}

		names := make([]plumbing.ReferenceName, 0, len(committedRefs))
		for name := range committedRefs {
			names = append(names, name)
		}
		current, err := r.Fetch(ctx, names)
		if err != nil {
			trace.Replication.Printf("ketch: replica %s commit-push fetch failed: %v", r.Name, err)
			return
		}

		cmds := Commit(committedRefs, current)
		if len(cmds) == 0 {
			return
		}
		for _, cmd := range cmds {
			r.Enqueue(PushRequest{
				Name:        cmd.Name,
				NewID:       cmd.NewID,
				CommitAlso:  true,
				CommittedID: upTo.ID,
				CurrentRefs: current,
			})
		}
		r.StartPush(ctx, func(bool, plumbing.ObjectID, error) {})
	}()
}

func (l *KetchLeader) countAcksLocked() int {
	n := 0
	for _, ok := range l.runningAck {
		if ok {
			n++
		}
	}
	return n
}

// Head returns the leader's most recently proposed log position.
func (l *KetchLeader) Head() LogIndex {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head
}

// Committed returns the highest log position a quorum has accepted.
func (l *KetchLeader) Committed() LogIndex {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committed
}

// RoleNow returns the leader's current role.
func (l *KetchLeader) RoleNow() Role {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.role
}

// Shutdown stops the leader from starting further rounds and cancels
// every replica's pending retry timer, so a shut-down leader doesn't keep
// a backoff goroutine alive waiting to retry a push nobody will observe
// (§4.10).
func (l *KetchLeader) Shutdown() {
	l.mu.Lock()
	l.role = Shutdown
	replicas := append(append([]*KetchReplica{}, l.voters...), l.followers...)
	l.mu.Unlock()

	for _, r := range replicas {
		r.Shutdown()
	}
}
