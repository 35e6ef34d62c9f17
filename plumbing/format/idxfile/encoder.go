package idxfile

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"io"

	"github.com/ketchgit/core/plumbing"
	"github.com/pjbgf/sha1cd"
)

// VersionSupported is the only pack index version this package reads or
// writes.
const VersionSupported = 2

// Header is the magic signature every version-2 pack index begins with.
var Header = []byte{0xff, 't', 'O', 'c'}

func newChecksumHash(hashSize int) hash.Hash {
	if hashSize == plumbing.SHA256Size {
		return sha256.New()
	}
	return sha1cd.New()
}

// Encode writes idx in the version-2 pack index format described in
// §6 of the wire format notes: an 8 byte header, a 256 entry big-endian
// fan-out table, the sorted id table, per-entry CRC32s, 32-bit offsets
// (with the top bit flagging an index into a trailing 64-bit overflow
// table), then the pack checksum and the index's own checksum.
func Encode(w io.Writer, idx *MemoryIndex) (plumbing.ObjectID, error) {
	h := newChecksumHash(idx.hashSize)
	mw := io.MultiWriter(w, h)

	if _, err := mw.Write(Header); err != nil {
		return plumbing.ObjectID{}, err
	}

	var large []uint64
	buf := make([]byte, 4)

	binary.BigEndian.PutUint32(buf, uint32(VersionSupported))
	if _, err := mw.Write(buf); err != nil {
		return plumbing.ObjectID{}, err
	}
	for _, v := range idx.fanout {
		binary.BigEndian.PutUint32(buf, v)
		if _, err := mw.Write(buf); err != nil {
			return plumbing.ObjectID{}, err
		}
	}
	if _, err := mw.Write(idx.ids); err != nil {
		return plumbing.ObjectID{}, err
	}
	for i, off := range idx.offsets {
		crc := uint32(0)
		if idx.crc32 != nil {
			crc = idx.crc32[i]
		}
		binary.BigEndian.PutUint32(buf, crc)
		if _, err := mw.Write(buf); err != nil {
			return plumbing.ObjectID{}, err
		}
		_ = off
	}
	for _, off := range idx.offsets {
		if off > 0x7fffffff {
			binary.BigEndian.PutUint32(buf, uint32(0x80000000|uint64(len(large))))
			large = append(large, off)
		} else {
			binary.BigEndian.PutUint32(buf, uint32(off))
		}
		if _, err := mw.Write(buf); err != nil {
			return plumbing.ObjectID{}, err
		}
	}
	for _, off := range large {
		b8 := make([]byte, 8)
		binary.BigEndian.PutUint64(b8, off)
		if _, err := mw.Write(b8); err != nil {
			return plumbing.ObjectID{}, err
		}
	}

	if _, err := mw.Write(idx.pack.Bytes()); err != nil {
		return plumbing.ObjectID{}, err
	}

	self := plumbing.NewObjectID(h.Sum(nil)[:idx.hashSize])
	if _, err := w.Write(self.Bytes()); err != nil {
		return plumbing.ObjectID{}, err
	}

	return self, nil
}

// EncodeToBytes is a convenience wrapper over Encode for callers that
// want the raw index bytes (e.g. to hand to a block-addressable store).
func EncodeToBytes(idx *MemoryIndex) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := Encode(&buf, idx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
