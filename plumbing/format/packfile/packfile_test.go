package packfile_test

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"testing"

	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/format/idxfile"
	"github.com/ketchgit/core/plumbing/format/packfile"
	"github.com/pjbgf/sha1cd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawEntry describes one pack object to synthesize for a test pack: its
// on-disk type, the header-size field, optional OFS_DELTA offset bytes,
// and the (possibly delta-encoded) bytes to zlib-compress.
type rawEntry struct {
	typ       plumbing.ObjectType
	size      int
	ofsDeltaDistance int64 // 0 unless typ == OFSDeltaObject
	raw       []byte
}

func encodeTypeAndSize(t plumbing.ObjectType, size int) []byte {
	first := byte(t) << 4
	rest := size >> 4
	if rest > 0 {
		first |= 0x80
	}
	first |= byte(size & 0x0f)
	out := []byte{first}
	for rest > 0 {
		b := byte(rest & 0x7f)
		rest >>= 7
		if rest > 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func encodeOffsetDelta(off int64) []byte {
	var tmp [10]byte
	i := len(tmp)
	i--
	tmp[i] = byte(off & 0x7f)
	off >>= 7
	for off != 0 {
		off--
		i--
		tmp[i] = byte(0x80 | (off & 0x7f))
		off >>= 7
	}
	return append([]byte(nil), tmp[i:]...)
}

// buildPack assembles a minimal v2 pack from entries, returning the full
// byte stream including trailer checksum.
func buildPack(t *testing.T, entries []rawEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("PACK")
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], 2)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(entries)))
	buf.Write(hdr[:])

	for _, e := range entries {
		buf.Write(encodeTypeAndSize(e.typ, e.size))
		if e.typ == plumbing.OFSDeltaObject {
			buf.Write(encodeOffsetDelta(e.ofsDeltaDistance))
		}
		zw := zlib.NewWriter(&buf)
		_, err := zw.Write(e.raw)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
	}

	h := sha1cd.New()
	h.Write(buf.Bytes())
	sum := h.Sum(nil)

	out := append([]byte(nil), buf.Bytes()...)
	return append(out, sum...)
}

func blockSource(data []byte) packfile.BlockSource {
	return packfile.NewReaderAtBlockSource(bytes.NewReader(data), int64(len(data)), 4096)
}

func objectID(t *testing.T, typ plumbing.ObjectType, content []byte) plumbing.ObjectID {
	t.Helper()
	h := plumbing.NewHasher(plumbing.SHA1Size, typ, int64(len(content)))
	h.Write(content)
	return h.Sum()
}

// TestFsckWholeObjectsAndOfsDelta parses a sound pack without an index:
// a blob plus an OFS_DELTA object built against it must both resolve,
// leaving no corrupt objects and no index findings.
func TestFsckWholeObjectsAndOfsDelta(t *testing.T) {
	base := []byte("hello")
	// Delta: copy 5 bytes from base at offset 0, then insert " world".
	delta := []byte{0x05, 0x0b, 0x90, 0x05, 0x06, ' ', 'w', 'o', 'r', 'l', 'd'}

	entries := []rawEntry{
		{typ: plumbing.BlobObject, size: len(base), raw: base},
		{typ: plumbing.OFSDeltaObject, size: len(delta), ofsDeltaDistance: 0 /* placeholder, fixed below */, raw: delta},
	}

	// The blob's header is 1 byte (0x35: type 3 and size 5 < 16 fit one
	// byte), so the delta object starts header plus compressed-payload
	// bytes after the blob, and that sum is its distance back to it.
	firstHeaderLen := len(encodeTypeAndSize(plumbing.BlobObject, len(base)))
	require.Equal(t, 1, firstHeaderLen)
	entries[1].ofsDeltaDistance = int64(firstHeaderLen + compressedLen(t, base))

	data := buildPack(t, entries)
	src := blockSource(data)

	parser := packfile.NewFsckPackParser(src, plumbing.SHA1Size, packfile.DefaultObjectChecker{HashSize: plumbing.SHA1Size})
	result, err := parser.Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.ObjectCount)
	assert.Empty(t, result.CorruptObjects)
	assert.Empty(t, result.IndexErrors)
}

func compressedLen(t *testing.T, content []byte) int {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(content)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Len()
}

// TestFsckIndexCrossCheck covers property 4's negative cases: a
// tampered index must surface MISMATCH_OFFSET, MISMATCH_CRC, and
// UNKNOWN_OBJ findings rather than silently passing.
func TestFsckIndexCrossCheck(t *testing.T) {
	content := []byte("hello")
	entries := []rawEntry{{typ: plumbing.BlobObject, size: len(content), raw: content}}
	data := buildPack(t, entries)
	src := blockSource(data)

	id := objectID(t, plumbing.BlobObject, content)

	w := idxfile.NewWriter(plumbing.SHA1Size)
	w.Add(id, 999, 0xdeadbeef) // wrong offset, wrong crc
	extra, _ := plumbing.FromHex("ffffffffffffffffffffffffffffffffffffffff")
	w.Add(extra, 50, 1) // never present in the pack
	idx := w.CreateIndex()

	parser := packfile.NewFsckPackParser(src, plumbing.SHA1Size, nil)
	result, err := parser.Parse(idx)
	require.NoError(t, err)

	var kinds []string
	for _, e := range result.IndexErrors {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, packfile.MismatchOffset)
	assert.Contains(t, kinds, packfile.MismatchCRC)
	assert.Contains(t, kinds, packfile.UnknownObj)
}

// TestFsckUnresolvableRefDelta covers scenario S5: a REF_DELTA whose base
// is absent from the pack must be reported, not silently dropped.
func TestFsckUnresolvableRefDelta(t *testing.T) {
	delta := []byte{0x05, 0x0b, 0x90, 0x05, 0x06, ' ', 'w', 'o', 'r', 'l', 'd'}
	var missingBase [20]byte
	copy(missingBase[:], bytes.Repeat([]byte{0xaa}, 20))

	var buf bytes.Buffer
	buf.WriteString("PACK")
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], 2)
	binary.BigEndian.PutUint32(hdr[4:8], 1)
	buf.Write(hdr[:])
	buf.Write(encodeTypeAndSize(plumbing.REFDeltaObject, len(delta)))
	buf.Write(missingBase[:])
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(delta)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	h := sha1cd.New()
	h.Write(buf.Bytes())
	data := append(buf.Bytes(), h.Sum(nil)...)

	parser := packfile.NewFsckPackParser(blockSource(data), plumbing.SHA1Size, nil)
	result, err := parser.Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ObjectCount)
	require.Len(t, result.CorruptObjects, 1)
	assert.ErrorIs(t, result.CorruptObjects[0].Err, packfile.ErrBaseNotFound)
}
