package object_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/filemode"
	"github.com/ketchgit/core/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustID(t *testing.T, hex string) plumbing.ObjectID {
	t.Helper()
	id, ok := plumbing.FromHex(hex)
	require.True(t, ok)
	return id
}

func TestSignatureRoundTrip(t *testing.T) {
	s := object.Signature{
		Name:  "Alice",
		Email: "alice@example.com",
		When:  time.Unix(1700000000, 0).In(time.FixedZone("", -5*3600)),
	}
	encoded := s.Encode()
	assert.Equal(t, "Alice <alice@example.com> 1700000000 -0500", encoded)

	var got object.Signature
	got.Decode([]byte(encoded))
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, int64(1700000000), got.When.Unix())
	_, offset := got.When.Zone()
	assert.Equal(t, -5*3600, offset)
}

func TestTreeEncodeDecode(t *testing.T) {
	id1 := mustID(t, "1111111111111111111111111111111111111111")
	id2 := mustID(t, "2222222222222222222222222222222222222222")

	tree := &object.Tree{Entries: []object.TreeEntry{
		{Name: "foo", Mode: filemode.Dir, ID: id1},
		{Name: "foo.txt", Mode: filemode.Regular, ID: id2},
	}}

	var buf bytes.Buffer
	require.NoError(t, tree.Encode(&buf))

	var got object.Tree
	require.NoError(t, got.Decode(&buf, 20))
	require.Len(t, got.Entries, 2)

	// "foo.txt" must sort before the tree "foo" (compared as "foo/").
	assert.Equal(t, "foo.txt", got.Entries[0].Name)
	assert.Equal(t, "foo", got.Entries[1].Name)
	assert.Equal(t, filemode.Dir, got.Entries[1].Mode)

	e, ok := got.Entry("foo")
	require.True(t, ok)
	assert.Equal(t, id1, e.ID)
}

func TestCommitEncodeDecode(t *testing.T) {
	treeID := mustID(t, "3333333333333333333333333333333333333333")
	parentID := mustID(t, "4444444444444444444444444444444444444444")
	sig := object.Signature{Name: "Bob", Email: "bob@example.com", When: time.Unix(1600000000, 0).UTC()}

	c := &object.Commit{
		TreeID:    treeID,
		ParentIDs: []plumbing.ObjectID{parentID},
		Author:    sig,
		Committer: sig,
		Message:   "a log entry\n",
	}

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf))

	var got object.Commit
	require.NoError(t, got.Decode(&buf))
	assert.Equal(t, treeID, got.TreeID)
	assert.Equal(t, []plumbing.ObjectID{parentID}, got.ParentIDs)
	assert.Equal(t, "a log entry\n", got.Message)
	assert.False(t, got.IsRoot())

	c.ParentIDs = nil
	buf.Reset()
	require.NoError(t, c.Encode(&buf))
	got = object.Commit{}
	require.NoError(t, got.Decode(&buf))
	assert.True(t, got.IsRoot())
}

func TestTagEncodeDecode(t *testing.T) {
	targetID := mustID(t, "5555555555555555555555555555555555555555")
	sig := object.Signature{Name: "Carol", Email: "carol@example.com", When: time.Unix(1500000000, 0).UTC()}

	tag := &object.Tag{
		TargetID:   targetID,
		TargetType: plumbing.CommitObject,
		Name:       "v1.0.0",
		Tagger:     sig,
		Message:    "release\n",
	}

	var buf bytes.Buffer
	require.NoError(t, tag.Encode(&buf))

	var got object.Tag
	require.NoError(t, got.Decode(&buf))
	assert.Equal(t, targetID, got.TargetID)
	assert.Equal(t, plumbing.CommitObject, got.TargetType)
	assert.Equal(t, "v1.0.0", got.Name)
	assert.Equal(t, "release\n", got.Message)
}

func TestBlobEncodeDecode(t *testing.T) {
	b := &object.Blob{Content: []byte("hello world")}
	var buf bytes.Buffer
	require.NoError(t, b.Encode(&buf))

	var got object.Blob
	require.NoError(t, got.Decode(&buf))
	assert.Equal(t, []byte("hello world"), got.Content)
}
