package idxfile_test

import (
	"bytes"
	"hash/crc32"
	"testing"

	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/format/idxfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustID(t *testing.T, hex string) plumbing.ObjectID {
	t.Helper()
	id, ok := plumbing.FromHex(hex)
	require.True(t, ok)
	return id
}

// TestRoundTrip covers property 1: for every (id, offset) pair built into
// a PackIndex, FindOffset returns it and the iterator yields entries in
// sorted id order.
func TestRoundTrip(t *testing.T) {
	w := idxfile.NewWriter(20)
	ids := []string{
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"0000000000000000000000000000000000000001",
		"ffffffffffffffffffffffffffffffffffffffff",
		"5555555555555555555555555555555555555555",
	}
	offsets := map[string]int64{
		ids[0]: 100,
		ids[1]: 12,
		ids[2]: 999999,
		ids[3]: 42,
	}
	for _, h := range ids {
		id := mustID(t, h)
		w.Add(id, offsets[h], crc32.ChecksumIEEE(id.Bytes()))
	}
	idx := w.CreateIndex()

	for _, h := range ids {
		id := mustID(t, h)
		off, err := idx.FindOffset(id)
		require.NoError(t, err)
		assert.Equal(t, offsets[h], off)

		crc, err := idx.FindCRC32(id)
		require.NoError(t, err)
		assert.Equal(t, crc32.ChecksumIEEE(id.Bytes()), crc)
	}

	it := idx.Iterator()
	var prev plumbing.ObjectID
	count := 0
	for {
		e, err := it.Next()
		if err != nil {
			break
		}
		if count > 0 {
			assert.True(t, prev.Compare(e.ID.Bytes()) < 0, "entries must be strictly increasing")
		}
		prev = e.ID
		count++
	}
	assert.Equal(t, len(ids), count)

	_, err := idx.FindOffset(mustID(t, "1111111111111111111111111111111111111111"))
	assert.ErrorIs(t, err, plumbing.ErrObjectNotFound)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	w := idxfile.NewWriter(20)
	w.Add(mustID(t, "0000000000000000000000000000000000000002"), 10, 1)
	w.Add(mustID(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), 1<<33, 2)
	w.SetPackChecksum(mustID(t, "cccccccccccccccccccccccccccccccccccccccc"))
	idx := w.CreateIndex()

	var buf bytes.Buffer
	self, err := idxfile.Encode(&buf, idx)
	require.NoError(t, err)

	decoded, err := idxfile.Decode(&buf, 20)
	require.NoError(t, err)
	assert.Equal(t, self, decoded.Checksum())
	assert.Equal(t, idx.PackChecksum(), decoded.PackChecksum())

	off, err := decoded.FindOffset(mustID(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	require.NoError(t, err)
	assert.EqualValues(t, 1<<33, off)
}
