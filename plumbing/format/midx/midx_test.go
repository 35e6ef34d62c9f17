package midx_test

import (
	"bytes"
	"testing"

	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/format/idxfile"
	"github.com/ketchgit/core/plumbing/format/midx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func id(t *testing.T, hex string) plumbing.ObjectID {
	t.Helper()
	v, ok := plumbing.FromHex(hex)
	require.True(t, ok)
	return v
}

func buildIndex(t *testing.T, entries map[string]int64) *idxfile.MemoryIndex {
	w := idxfile.NewWriter(20)
	for h, off := range entries {
		w.Add(id(t, h), off, 0)
	}
	return w.CreateIndex()
}

// TestDedupFirstPackWins covers property 2: given packs P1, P2 where
// object X appears in both, the MIDX built from [P1, P2] has exactly one
// entry for X whose pack id is 0.
func TestDedupFirstPackWins(t *testing.T) {
	shared := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	p1 := buildIndex(t, map[string]int64{shared: 10, "1111111111111111111111111111111111111111": 20})
	p2 := buildIndex(t, map[string]int64{shared: 99})

	m, err := midx.Build([]string{"pack-1.idx", "pack-2.idx"}, []idxfile.Index{p1, p2}, 20)
	require.NoError(t, err)

	assert.Equal(t, 2, m.GetObjectCount())
	packID, offset, ok := m.Find(id(t, shared))
	require.True(t, ok)
	assert.Equal(t, 0, packID)
	assert.EqualValues(t, 10, offset)
}

// TestBitmapRoundTrip covers property 3: for every dense position p,
// findBitmapPosition(find(getObjectAt(p))) is a valid bitmap position
// whose getObjectAtBitmapPosition returns the same id.
func TestBitmapRoundTrip(t *testing.T) {
	p1 := buildIndex(t, map[string]int64{
		"0000000000000000000000000000000000000001": 5,
		"0000000000000000000000000000000000000002": 500,
		"0000000000000000000000000000000000000003": 50,
	})
	p2 := buildIndex(t, map[string]int64{
		"ffffffffffffffffffffffffffffffffffffffff": 1,
	})

	m, err := midx.Build([]string{"a.idx", "b.idx"}, []idxfile.Index{p1, p2}, 20)
	require.NoError(t, err)

	for p := 0; p < m.GetObjectCount(); p++ {
		objID, ok := m.GetObjectAt(p)
		require.True(t, ok)

		packID, offset, ok := m.Find(objID)
		require.True(t, ok)

		bitmapPos, ok := m.FindBitmapPosition(packID, offset)
		require.True(t, ok)

		got, ok := m.GetObjectAtBitmapPosition(bitmapPos)
		require.True(t, ok)
		assert.True(t, got.Equal(objID))
	}
}

// TestLargeOffsets covers scenario S4: an object at offset 2^33 forces the
// large-offset chunk and round-trips through encode/decode.
func TestLargeOffsets(t *testing.T) {
	p1 := buildIndex(t, map[string]int64{
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa": 1 << 33,
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb": 200,
	})

	m, err := midx.Build([]string{"huge.idx"}, []idxfile.Index{p1}, 20)
	require.NoError(t, err)
	assert.True(t, m.Stats().NeedsLargeOffsets)

	_, offset, ok := m.Find(id(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	require.True(t, ok)
	assert.EqualValues(t, 1<<33, offset)

	var buf bytes.Buffer
	_, err = midx.Encode(&buf, m)
	require.NoError(t, err)

	decoded, err := midx.Decode(&buf, 20)
	require.NoError(t, err)
	_, offset, ok = decoded.Find(id(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	require.True(t, ok)
	assert.EqualValues(t, 1<<33, offset)
}

func TestResolvePrefix(t *testing.T) {
	p1 := buildIndex(t, map[string]int64{
		"abcdef0000000000000000000000000000000000000000000000000000000000000000"[:40]: 1,
	})
	m, err := midx.Build([]string{"p.idx"}, []idxfile.Index{p1}, 20)
	require.NoError(t, err)

	var out []plumbing.ObjectID
	m.Resolve([]byte{0xab, 0xcd}, 0, &out)
	require.Len(t, out, 1)
}
