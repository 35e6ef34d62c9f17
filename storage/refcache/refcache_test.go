package refcache_test

import (
	"testing"

	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/storer"
	"github.com/ketchgit/core/storage/refcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRefDatabase is a minimal storer.RefDatabase backed by a plain map,
// enough to drive InMemoryRefDatabase without a real loose/reftree store.
type fakeRefDatabase struct {
	refs map[plumbing.ReferenceName]*plumbing.Ref
}

func newFakeRefDatabase() *fakeRefDatabase {
	return &fakeRefDatabase{refs: map[plumbing.ReferenceName]*plumbing.Ref{}}
}

func (f *fakeRefDatabase) ExactRef(name plumbing.ReferenceName) (*plumbing.Ref, error) {
	return f.refs[name], nil
}

func (f *fakeRefDatabase) GetRefs(prefix string) (map[plumbing.ReferenceName]*plumbing.Ref, error) {
	out := map[plumbing.ReferenceName]*plumbing.Ref{}
	for n, r := range f.refs {
		out[n] = r
	}
	return out, nil
}

func (f *fakeRefDatabase) GetAdditionalRefs() ([]*plumbing.Ref, error) { return nil, nil }
func (f *fakeRefDatabase) Peel(ref *plumbing.Ref) (*plumbing.Ref, error) { return ref, nil }
func (f *fakeRefDatabase) NewUpdate(name plumbing.ReferenceName, detach bool) (storer.Update, error) {
	return nil, nil
}
func (f *fakeRefDatabase) NewBatchUpdate() (storer.BatchUpdate, error) { return nil, nil }
func (f *fakeRefDatabase) NewRename(from, to plumbing.ReferenceName) (storer.Update, error) {
	return nil, nil
}
func (f *fakeRefDatabase) IsNameConflicting(name plumbing.ReferenceName) (bool, error) {
	return false, nil
}
func (f *fakeRefDatabase) PerformsAtomicTransactions() bool { return false }

func TestInMemoryRefDatabaseServesFromCache(t *testing.T) {
	wrapped := newFakeRefDatabase()
	id, _ := plumbing.FromHex("1111111111111111111111111111111111111111")
	wrapped.refs["refs/heads/main"] = plumbing.NewObjectIDRef("refs/heads/main", plumbing.LooseStorage, id)
	wrapped.refs["refs/heads/other"] = plumbing.NewObjectIDRef("refs/heads/other", plumbing.LooseStorage, id)

	cache, err := refcache.New(wrapped, "")
	require.NoError(t, err)
	defer cache.Close()

	ref, err := cache.ExactRef("refs/heads/main")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, id, ref.ObjectID())

	refs, err := cache.GetRefs("refs/heads/")
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestInMemoryRefDatabaseReload(t *testing.T) {
	wrapped := newFakeRefDatabase()
	cache, err := refcache.New(wrapped, "")
	require.NoError(t, err)
	defer cache.Close()

	ref, err := cache.ExactRef("refs/heads/main")
	require.NoError(t, err)
	assert.Nil(t, ref)

	id, _ := plumbing.FromHex("2222222222222222222222222222222222222222")
	wrapped.refs["refs/heads/main"] = plumbing.NewObjectIDRef("refs/heads/main", plumbing.LooseStorage, id)

	require.NoError(t, cache.Reload())

	ref, err = cache.ExactRef("refs/heads/main")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, id, ref.ObjectID())
}
