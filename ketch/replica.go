package ketch

import (
	"context"
	"sync"
	"time"

	"github.com/ketchgit/core/internal/trace"
	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/storer"
	"github.com/prometheus/client_golang/prometheus"
)

// Participation records whether a replica's acceptance counts toward
// quorum.
type Participation int8

const (
	Full         Participation = iota // voter
	FollowerOnly                       // receives commits, never votes
)

// CommitMethod selects how a replica's committed state is pushed.
type CommitMethod int8

const (
	AllRefs      CommitMethod = iota // push every user-visible ref, with deletions
	TxnCommitted                     // only advance refs/txn/committed
)

// CommitSpeed governs when a replica's commit push is sent relative to
// its accept push.
type CommitSpeed int8

const (
	Fast    CommitSpeed = iota // send the commit as soon as accept succeeds
	Batched                    // piggyback on the next round's push when one starts soon
)

// ReplicaState is a leader's view of one peer's convergence with head.
type ReplicaState int8

const (
	Unknown ReplicaState = iota
	Lagging
	Current
	Divergent
	Ahead
	Offline
)

// acceptedRefName is the transactional ref every replica's transport
// advances to record acceptance of a round's log-entry commit.
const acceptedRefName plumbing.ReferenceName = "refs/txn/accepted"

// committedRefName is the transactional ref a CommitMethod == TxnCommitted
// replica's transport advances to record that a log entry is committed,
// once a quorum has accepted it.
const committedRefName plumbing.ReferenceName = "refs/txn/committed"

// PushRequest asks a replica's transport to accept (and optionally
// commit) a log-entry commit.
type PushRequest struct {
	Name          plumbing.ReferenceName // the transactional accept ref to update
	NewID         plumbing.ObjectID
	CommitAlso    bool
	CommittedID   plumbing.ObjectID
	CurrentRefs   map[plumbing.ReferenceName]*plumbing.Ref
}

// PushResult reports what a transport observed.
type PushResult struct {
	Accepted     bool
	RemoteID     plumbing.ObjectID // the value the remote actually holds, win or lose
}

// Transport is the polymorphic capability a KetchReplica pushes through:
// {startPush, blockingFetch} per the block-addressable-channel-style
// abstractions called out for the replica push path. A local replica's
// transport may simply write straight into its own storage; a remote
// replica's transport speaks whatever wire protocol the deployment uses.
type Transport interface {
	StartPush(ctx context.Context, req PushRequest) (PushResult, error)
	BlockingFetch(ctx context.Context, refs []plumbing.ReferenceName) (map[plumbing.ReferenceName]*plumbing.Ref, error)
}

// KetchReplica is the leader's per-peer state machine: push queues,
// retry backoff, commit propagation, and lag detection (§4.8).
type KetchReplica struct {
	Name          string
	Participation Participation
	Method        CommitMethod
	Speed         CommitSpeed

	transport Transport
	minRetry  time.Duration
	maxRetry  time.Duration

	mu           sync.Mutex
	state        ReplicaState
	accepted     LogIndex
	committed    LogIndex
	lastErr      error
	retryArmed   bool
	lastDelay    time.Duration
	retryTimer   *time.Timer
	shutdown     bool
	queued       []PushRequest
	running      []PushRequest
	waitingNames map[plumbing.ReferenceName]bool

	acceptedGauge prometheus.Gauge
}

// NewKetchReplica builds a replica in state UNKNOWN.
func NewKetchReplica(name string, participation Participation, method CommitMethod, speed CommitSpeed, transport Transport, minRetry, maxRetry time.Duration) *KetchReplica {
	return &KetchReplica{
		Name: name, Participation: participation, Method: method, Speed: speed,
		transport: transport, minRetry: minRetry, maxRetry: maxRetry,
		waitingNames: map[plumbing.ReferenceName]bool{},
		acceptedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "ketch_replica_accepted_position",
			Help:        "Log position this replica has most recently accepted.",
			ConstLabels: prometheus.Labels{"replica": name},
		}),
	}
}

// IsVoter reports whether this replica counts toward quorum.
func (r *KetchReplica) IsVoter() bool { return r.Participation == Full }

// State reports the replica's current convergence state.
func (r *KetchReplica) State() ReplicaState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Accepted reports the highest log index this replica has accepted.
func (r *KetchReplica) Accepted() LogIndex {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accepted
}

// Committed reports the highest log index this replica has confirmed as
// committed, via a commit push with CommitAlso set.
func (r *KetchReplica) Committed() LogIndex {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed
}

// deferred reports whether req must wait: retry is armed, or any of its
// referenced names is already waiting or running (Testable Property #10:
// per-reference ordering).
func (r *KetchReplica) deferred(req PushRequest) bool {
	if r.retryArmed {
		return true
	}
	return r.waitingNames[req.Name]
}

// Enqueue adds req to the queue, collapsing with any already-queued
// request for the same ref by keeping the latest new value (request
// construction is the caller's job).
func (r *KetchReplica) Enqueue(req PushRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, q := range r.queued {
		if q.Name == req.Name {
			r.queued[i] = req
			return
		}
	}
	r.queued = append(r.queued, req)
}

// RetryNow clears the armed-retry flag, letting the next StartPush
// proceed immediately. Called automatically by the timer onTransportError
// schedules once lastDelay has elapsed since the last transport failure;
// a caller may also invoke it directly to force an immediate retry.
func (r *KetchReplica) RetryNow() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return
	}
	r.retryArmed = false
}

// Shutdown stops this replica from scheduling (or honoring) any further
// retry, canceling whatever backoff timer is currently pending (§4.10).
// Safe to call more than once.
func (r *KetchReplica) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown = true
	if r.retryTimer != nil {
		r.retryTimer.Stop()
		r.retryTimer = nil
	}
}

// StartPush moves the replica's queue to running and fires off the
// push(es) on a new goroutine, off the leader's lock, per §5's
// requirement that startPush never blocks the lock holder.
func (r *KetchReplica) StartPush(ctx context.Context, onDone func(accepted bool, remote plumbing.ObjectID, err error)) {
	r.mu.Lock()
	if len(r.queued) == 0 || r.deferred(r.queued[0]) {
		r.mu.Unlock()
		return
	}
	batch := r.queued
	r.queued = nil
	r.running = batch
	for _, req := range batch {
		r.waitingNames[req.Name] = true
	}
	r.mu.Unlock()

	go r.push(ctx, batch, onDone)
}

// Fetch delegates to the replica's transport, for a leader that needs to
// know this replica's current ref state before computing an ALL_REFS
// commit-push delta.
func (r *KetchReplica) Fetch(ctx context.Context, refs []plumbing.ReferenceName) (map[plumbing.ReferenceName]*plumbing.Ref, error) {
	return r.transport.BlockingFetch(ctx, refs)
}

func (r *KetchReplica) push(ctx context.Context, batch []PushRequest, onDone func(bool, plumbing.ObjectID, error)) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var lastAccepted bool
	var lastRemote plumbing.ObjectID
	var lastErr error
	for _, req := range batch {
		res, err := r.transport.StartPush(cctx, req)
		lastAccepted, lastRemote, lastErr = res.Accepted, res.RemoteID, err
		if err != nil {
			r.onTransportError(err)
			break
		}
		r.onPushResult(req, res)
	}

	r.mu.Lock()
	for _, req := range r.running {
		delete(r.waitingNames, req.Name)
	}
	r.running = nil
	r.mu.Unlock()

	onDone(lastAccepted, lastRemote, lastErr)
}

func (r *KetchReplica) onPushResult(req PushRequest, res PushResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryArmed = false
	r.lastDelay = 0
	if res.Accepted {
		if req.CommitAlso {
			r.committed = LogIndex{ID: req.CommittedID}
		} else {
			r.accepted = LogIndex{ID: req.NewID}
			r.acceptedGauge.Set(float64(r.accepted.Position))
		}
		r.state = Current
		return
	}
	// Reachability classification is delegated to the caller (the
	// leader holds the commit graph); a bare rejection without more
	// information defaults to LAGGING, the least surprising guess.
	r.state = Lagging
	trace.Replication.Printf("ketch: replica %s rejected push of %s for %s", r.Name, req.NewID, req.Name)
}

// ClassifyAfterRejection applies the reachability-based state transition
// of §4.8 once the leader has walked ancestry between res.RemoteID and
// head.
func (r *KetchReplica) ClassifyAfterRejection(remoteIsAncestorOfHead, headIsAncestorOfRemote, remoteKnownLocally bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case !remoteKnownLocally:
		r.state = Divergent
	case remoteIsAncestorOfHead:
		r.state = Lagging
	case headIsAncestorOfRemote:
		r.state = Ahead
	default:
		r.state = Divergent
	}
}

func (r *KetchReplica) onTransportError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Offline
	r.lastErr = err
	r.retryArmed = true
	r.lastDelay = nextBackoff(r.lastDelay, r.minRetry, r.maxRetry)
	trace.Replication.Printf("ketch: replica %s transport error, backing off %s: %v", r.Name, r.lastDelay, err)

	if r.shutdown {
		return
	}
	if r.retryTimer != nil {
		r.retryTimer.Stop()
	}
	r.retryTimer = time.AfterFunc(r.lastDelay, r.RetryNow)
}

// nextBackoff implements Testable Property #9: d' = max(min, min(max, 2*d)),
// with d=0 read as "first failure".
func nextBackoff(last, min, max time.Duration) time.Duration {
	next := 2 * last
	if last == 0 {
		next = min
	}
	if next < min {
		next = min
	}
	if next > max {
		next = max
	}
	return next
}

// LastRetryDelay returns the backoff computed by the most recent
// transport failure, for tests asserting Property #9's monotonicity.
func (r *KetchReplica) LastRetryDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastDelay
}

// Commit computes the ALL_REFS delta between currentRemoteRefs and the
// committed RefTree's state, per §4.11: creates/updates for every
// changed gitlink entry, deletes for every remote ref the walk doesn't
// cover (except HEAD and the transactional namespace, both protected).
func Commit(committedRefs map[plumbing.ReferenceName]*plumbing.Ref, currentRemoteRefs map[plumbing.ReferenceName]*plumbing.Ref) []storer.Command {
	var cmds []storer.Command
	covered := map[plumbing.ReferenceName]bool{}

	for name, want := range committedRefs {
		covered[name] = true
		if want.IsSymbolic() {
			continue // symbolic refs are not pushed; remote handles them
		}
		have, ok := currentRemoteRefs[name]
		if ok && !have.IsSymbolic() && have.ObjectID().Equal(want.ObjectID()) {
			continue
		}
		cmds = append(cmds, storer.Command{Name: name, NewID: want.ObjectID()})
	}

	for name := range currentRemoteRefs {
		if covered[name] || name == plumbing.HEAD || name.IsTransactional() {
			continue
		}
		cmds = append(cmds, storer.Command{Name: name, NewID: plumbing.ZeroHash})
	}
	return cmds
}
