package ketch_test

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/ketchgit/core/ketch"
	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/storage/loose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTransportStartPushAccepts(t *testing.T) {
	db := loose.NewDatabase(memfs.New())
	transport := ketch.NewLocalTransport(db)

	id, _ := plumbing.FromHex("1111111111111111111111111111111111111111")
	res, err := transport.StartPush(context.Background(), ketch.PushRequest{Name: "refs/txn/accepted", NewID: id})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, id, res.RemoteID)

	ref, err := db.ExactRef("refs/txn/accepted")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, id, ref.ObjectID())
}

func TestLocalTransportStartPushAbortsOnCancelledContext(t *testing.T) {
	db := loose.NewDatabase(memfs.New())
	transport := ketch.NewLocalTransport(db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id, _ := plumbing.FromHex("2222222222222222222222222222222222222222")
	_, err := transport.StartPush(ctx, ketch.PushRequest{Name: "refs/txn/accepted", NewID: id})
	assert.Error(t, err)
}

func TestLocalTransportBlockingFetch(t *testing.T) {
	db := loose.NewDatabase(memfs.New())
	transport := ketch.NewLocalTransport(db)

	id, _ := plumbing.FromHex("3333333333333333333333333333333333333333")
	u, err := db.NewUpdate("refs/heads/main", false)
	require.NoError(t, err)
	require.NoError(t, u.SetNew(id))
	require.NoError(t, u.Commit())

	refs, err := transport.BlockingFetch(context.Background(), []plumbing.ReferenceName{"refs/heads/main", "refs/heads/missing"})
	require.NoError(t, err)
	assert.Len(t, refs, 1)
	assert.Equal(t, id, refs["refs/heads/main"].ObjectID())
}
