package storer_test

import (
	"errors"
	"strconv"
	"testing"

	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/storer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNameConflicting(t *testing.T) {
	existing := func(yield func(plumbing.ReferenceName) bool) {
		yield("refs/heads/a")
	}

	assert.True(t, storer.IsNameConflicting(existing, "refs/heads/a/b"))
	assert.True(t, storer.IsNameConflicting(existing, "refs/heads"))
	assert.False(t, storer.IsNameConflicting(existing, "refs/heads/b"))
}

func TestGetLeafWithDepthLimit(t *testing.T) {
	// A chain of 6 symbolic refs: r0 -> r1 -> ... -> r5 -> r6 (direct).
	refs := map[plumbing.ReferenceName]*plumbing.Ref{}
	leaf := plumbing.NewObjectIDRef("r6", plumbing.LooseStorage, plumbing.ZeroHash)
	refs["r6"] = leaf
	for i := 5; i >= 0; i-- {
		name := plumbing.ReferenceName("r" + strconv.Itoa(i))
		target := plumbing.NewObjectIDRef(plumbing.ReferenceName("r"+strconv.Itoa(i+1)), plumbing.LooseStorage, plumbing.ZeroHash)
		refs[name] = plumbing.NewSymbolicRef(name, plumbing.LooseStorage, target)
	}

	lookup := func(n plumbing.ReferenceName) (*plumbing.Ref, error) {
		return refs[n], nil
	}

	got, err := storer.GetLeafWithDepthLimit(refs["r0"], lookup)
	require.NoError(t, err)
	assert.Nil(t, got, "a chain of 6 hops exceeds MaxSymbolicRefDepth and must resolve to nil")
}

func TestGetLeafWithDepthLimitShortChain(t *testing.T) {
	leaf := plumbing.NewObjectIDRef("leaf", plumbing.LooseStorage, plumbing.ZeroHash)
	target := plumbing.NewObjectIDRef("leaf", plumbing.LooseStorage, plumbing.ZeroHash)
	start := plumbing.NewSymbolicRef("HEAD", plumbing.LooseStorage, target)

	lookup := func(n plumbing.ReferenceName) (*plumbing.Ref, error) {
		if n == "leaf" {
			return leaf, nil
		}
		return nil, errors.New("unexpected lookup")
	}

	got, err := storer.GetLeafWithDepthLimit(start, lookup)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, plumbing.ReferenceName("leaf"), got.Name())
}
