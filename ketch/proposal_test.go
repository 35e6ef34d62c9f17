package ketch_test

import (
	"testing"
	"time"

	"github.com/ketchgit/core/ketch"
	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/storer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposalAwaitBlocksUntilFinish(t *testing.T) {
	id, _ := plumbing.FromHex("1111111111111111111111111111111111111111")
	p := ketch.NewProposal([]storer.Command{{Name: "refs/heads/main", NewID: id}})
	assert.Equal(t, ketch.Queued, p.State())

	done := make(chan struct{})
	var results []storer.CommandResult
	var err error
	go func() {
		results, err = p.Await()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Await returned before the proposal finished")
	case <-time.After(20 * time.Millisecond):
	}

	round := ketch.NewProposalRound(nil, []*ketch.Proposal{p})
	round.Success()

	<-done
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, storer.OK, results[0].Status)
	assert.Equal(t, ketch.Executed, p.State())
}

func TestProposalRoundSuccessReleasesEveryBundledProposal(t *testing.T) {
	id1, _ := plumbing.FromHex("1111111111111111111111111111111111111111")
	id2, _ := plumbing.FromHex("2222222222222222222222222222222222222222")
	id3, _ := plumbing.FromHex("3333333333333333333333333333333333333333")

	p1 := ketch.NewProposal([]storer.Command{{Name: "refs/heads/a", NewID: id1}})
	p2 := ketch.NewProposal([]storer.Command{
		{Name: "refs/heads/b", NewID: id2},
		{Name: "refs/heads/c", NewID: id3},
	})

	round := ketch.NewProposalRound(nil, []*ketch.Proposal{p1, p2})
	round.Success()

	r1, err := p1.Await()
	require.NoError(t, err)
	require.Len(t, r1, 1)
	assert.Equal(t, storer.OK, r1[0].Status)

	r2, err := p2.Await()
	require.NoError(t, err)
	require.Len(t, r2, 2)
	for _, res := range r2 {
		assert.Equal(t, storer.OK, res.Status)
	}
}

func TestLogIndexIsZero(t *testing.T) {
	var zero ketch.LogIndex
	assert.True(t, zero.IsZero())

	id, _ := plumbing.FromHex("1111111111111111111111111111111111111111")
	assert.False(t, ketch.LogIndex{ID: id, Position: 1}.IsZero())
}
