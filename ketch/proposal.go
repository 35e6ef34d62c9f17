package ketch

import (
	"sync"

	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/storer"
)

// ProposalState is where a client-submitted batch of reference updates
// sits in its lifecycle.
type ProposalState int8

const (
	Queued ProposalState = iota
	Running
	Executed
	Aborted
)

// Proposal is a client-submitted atomic batch of reference update
// commands, tracked from submission through a round's quorum tally.
type Proposal struct {
	Commands []storer.Command

	mu      sync.Mutex
	state   ProposalState
	results []storer.CommandResult
	err     error
	done    chan struct{}
}

// NewProposal builds a QUEUED proposal for the given commands.
func NewProposal(commands []storer.Command) *Proposal {
	return &Proposal{Commands: commands, done: make(chan struct{})}
}

// State returns the proposal's current lifecycle state.
func (p *Proposal) State() ProposalState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Await blocks until the proposal reaches EXECUTED or ABORTED, then
// returns its per-command results (nil if aborted) and any terminal
// error.
func (p *Proposal) Await() ([]storer.CommandResult, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results, p.err
}

func (p *Proposal) setRunning() {
	p.mu.Lock()
	p.state = Running
	p.mu.Unlock()
}

func (p *Proposal) finish(state ProposalState, results []storer.CommandResult, err error) {
	p.mu.Lock()
	p.state = state
	p.results = results
	p.err = err
	p.mu.Unlock()
	close(p.done)
}

// LogIndex is a log-entry commit id plus its monotone integer position in
// the transactional log.
type LogIndex struct {
	ID       plumbing.ObjectID
	Position uint64
}

// IsZero reports whether this LogIndex names no log entry at all (the
// state before any round has ever committed).
func (l LogIndex) IsZero() bool { return l.ID.IsZero() }
