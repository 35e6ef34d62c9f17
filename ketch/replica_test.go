package ketch_test

import (
	"context"
	"testing"
	"time"

	"github.com/ketchgit/core/ketch"
	"github.com/ketchgit/core/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// acceptingTransport always accepts a push, recording the last request.
type acceptingTransport struct {
	lastReq ketch.PushRequest
}

func (a *acceptingTransport) StartPush(ctx context.Context, req ketch.PushRequest) (ketch.PushResult, error) {
	a.lastReq = req
	return ketch.PushResult{Accepted: true, RemoteID: req.NewID}, nil
}

func (a *acceptingTransport) BlockingFetch(ctx context.Context, refs []plumbing.ReferenceName) (map[plumbing.ReferenceName]*plumbing.Ref, error) {
	return nil, nil
}

// failingTransport always returns a transport error.
type failingTransport struct{}

func (failingTransport) StartPush(ctx context.Context, req ketch.PushRequest) (ketch.PushResult, error) {
	return ketch.PushResult{}, assertErr
}

func (failingTransport) BlockingFetch(ctx context.Context, refs []plumbing.ReferenceName) (map[plumbing.ReferenceName]*plumbing.Ref, error) {
	return nil, nil
}

var assertErr = assertError("transport unreachable")

type assertError string

func (e assertError) Error() string { return string(e) }

func TestReplicaAcceptedPush(t *testing.T) {
	transport := &acceptingTransport{}
	r := ketch.NewKetchReplica("v1", ketch.Full, ketch.AllRefs, ketch.Fast, transport, 100*time.Millisecond, 10*time.Second)

	id, _ := plumbing.FromHex("1111111111111111111111111111111111111111")
	done := make(chan struct{})
	r.Enqueue(ketch.PushRequest{Name: "refs/heads/main", NewID: id})
	r.StartPush(context.Background(), func(accepted bool, remote plumbing.ObjectID, err error) {
		defer close(done)
		assert.True(t, accepted)
		assert.NoError(t, err)
		assert.Equal(t, id, remote)
	})
	<-done

	assert.Equal(t, ketch.Current, r.State())
	assert.Equal(t, id, r.Accepted().ID)
}

func TestReplicaBackoffMonotonic(t *testing.T) {
	r := ketch.NewKetchReplica("v2", ketch.Full, ketch.AllRefs, ketch.Fast, failingTransport{}, 100*time.Millisecond, 2*time.Second)

	id, _ := plumbing.FromHex("1111111111111111111111111111111111111111")
	var delays []time.Duration
	for i := 0; i < 6; i++ {
		done := make(chan struct{})
		r.RetryNow()
		r.Enqueue(ketch.PushRequest{Name: "refs/heads/main", NewID: id})
		r.StartPush(context.Background(), func(accepted bool, remote plumbing.ObjectID, err error) {
			close(done)
		})
		<-done
		delays = append(delays, r.LastRetryDelay())
	}

	for i, d := range delays {
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 2*time.Second)
		if i > 0 {
			assert.GreaterOrEqual(t, d, delays[i-1])
		}
	}
	assert.Equal(t, 2*time.Second, delays[len(delays)-1])
	assert.Equal(t, ketch.Offline, r.State())
}

func TestCommitDelta(t *testing.T) {
	mainID, _ := plumbing.FromHex("1111111111111111111111111111111111111111")
	staleID, _ := plumbing.FromHex("2222222222222222222222222222222222222222")
	goneID, _ := plumbing.FromHex("3333333333333333333333333333333333333333")

	committed := map[plumbing.ReferenceName]*plumbing.Ref{
		"refs/heads/main": plumbing.NewObjectIDRef("refs/heads/main", plumbing.LooseStorage, mainID),
	}
	remote := map[plumbing.ReferenceName]*plumbing.Ref{
		"refs/heads/main":  plumbing.NewObjectIDRef("refs/heads/main", plumbing.LooseStorage, staleID),
		"refs/heads/dead":  plumbing.NewObjectIDRef("refs/heads/dead", plumbing.LooseStorage, goneID),
		"HEAD":             plumbing.NewSymbolicRef("HEAD", plumbing.LooseStorage, plumbing.NewObjectIDRef("refs/heads/main", plumbing.LooseStorage, mainID)),
	}

	cmds := ketch.Commit(committed, remote)
	require.Len(t, cmds, 2)

	var sawUpdate, sawDelete bool
	for _, c := range cmds {
		switch c.Name {
		case "refs/heads/main":
			sawUpdate = true
			assert.Equal(t, mainID, c.NewID)
		case "refs/heads/dead":
			sawDelete = true
			assert.True(t, c.NewID.IsZero())
		}
	}
	assert.True(t, sawUpdate)
	assert.True(t, sawDelete)
}
