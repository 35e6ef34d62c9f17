package loose_test

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/storer"
	"github.com/ketchgit/core/storage/loose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndReadObjectIDRef(t *testing.T) {
	db := loose.NewDatabase(memfs.New())
	id, _ := plumbing.FromHex("1111111111111111111111111111111111111111")

	u, err := db.NewUpdate("refs/txn/committed", false)
	require.NoError(t, err)
	require.NoError(t, u.SetNew(id))
	require.NoError(t, u.Commit())

	ref, err := db.ExactRef("refs/txn/committed")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, id, ref.ObjectID())
}

func TestSetAndReadSymbolicRef(t *testing.T) {
	db := loose.NewDatabase(memfs.New())
	id, _ := plumbing.FromHex("2222222222222222222222222222222222222222")

	target, err := db.NewUpdate("refs/heads/main", false)
	require.NoError(t, err)
	require.NoError(t, target.SetNew(id))
	require.NoError(t, target.Commit())

	head, err := db.NewUpdate("HEAD", false)
	require.NoError(t, err)
	require.NoError(t, head.SetNewTarget("refs/heads/main"))
	require.NoError(t, head.Commit())

	ref, err := db.ExactRef("HEAD")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.True(t, ref.IsSymbolic())
	assert.Equal(t, plumbing.ReferenceName("refs/heads/main"), ref.Target().Name())
}

func TestExactRefMissingIsNilNotError(t *testing.T) {
	db := loose.NewDatabase(memfs.New())
	ref, err := db.ExactRef("refs/heads/missing")
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestGetRefsWalksByPrefix(t *testing.T) {
	db := loose.NewDatabase(memfs.New())
	id, _ := plumbing.FromHex("3333333333333333333333333333333333333333")

	for _, name := range []plumbing.ReferenceName{"refs/heads/a", "refs/heads/b", "refs/tags/v1"} {
		u, err := db.NewUpdate(name, false)
		require.NoError(t, err)
		require.NoError(t, u.SetNew(id))
		require.NoError(t, u.Commit())
	}

	refs, err := db.GetRefs("refs/heads/")
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	all, err := db.GetRefs("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestBatchUpdateSequentialNoAtomicity(t *testing.T) {
	db := loose.NewDatabase(memfs.New())
	assert.False(t, db.PerformsAtomicTransactions())

	id, _ := plumbing.FromHex("4444444444444444444444444444444444444444")
	b, err := db.NewBatchUpdate()
	require.NoError(t, err)
	b.AddCommand(storer.Command{Name: "refs/heads/a", NewID: id})
	b.AddCommand(storer.Command{Name: "refs/heads/b", NewID: id})

	results, err := b.Execute()
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, storer.OK, res.Status)
	}
}

func TestRenamePreservesValueAndRemovesOld(t *testing.T) {
	db := loose.NewDatabase(memfs.New())
	id, _ := plumbing.FromHex("5555555555555555555555555555555555555555")

	u, err := db.NewUpdate("refs/heads/old", false)
	require.NoError(t, err)
	require.NoError(t, u.SetNew(id))
	require.NoError(t, u.Commit())

	rn, err := db.NewRename("refs/heads/old", "refs/heads/new")
	require.NoError(t, err)
	require.NoError(t, rn.Commit())

	oldRef, err := db.ExactRef("refs/heads/old")
	require.NoError(t, err)
	assert.Nil(t, oldRef)

	newRef, err := db.ExactRef("refs/heads/new")
	require.NoError(t, err)
	require.NotNil(t, newRef)
	assert.Equal(t, id, newRef.ObjectID())
}
