// Package idxfile implements the version-2 pack index format: a sorted
// map from object id to pack byte offset, with a 256-entry fan-out table
// and per-entry CRC32.
package idxfile

import (
	"errors"
	"io"
	"sort"

	"github.com/ketchgit/core/plumbing"
)

// ErrInvalidIndex is returned when the on-disk representation fails a
// structural check: bad magic, unsupported version, or a truncated file.
var ErrInvalidIndex = errors.New("invalid pack index")

// Entry is one (id, offset, crc32) triple. A *Entry returned by an
// EntryIter is only guaranteed valid until the following Next call (see
// EntryIter); callers must copy the value if they need to retain it.
type Entry struct {
	ID     plumbing.ObjectID
	Offset uint64
	CRC32  uint32
}

// EntryIter yields entries in sorted id order.
type EntryIter interface {
	// Next returns the next entry, or (nil, io.EOF) once exhausted. The
	// returned *Entry is only valid until the following call to Next.
	Next() (*Entry, error)
}

// Index is the read surface a pack index exposes over one pack file. It
// never owns the underlying pack; offsets are meaningless without it.
type Index interface {
	// FindOffset returns the pack byte offset of id, or
	// plumbing.ErrObjectNotFound.
	FindOffset(id plumbing.ObjectID) (int64, error)

	// HasCRC32 reports whether this index carries per-object CRC32 values.
	HasCRC32() bool

	// FindCRC32 returns the CRC32 recorded for id. Returns
	// plumbing.ErrObjectNotFound if HasCRC32 is false or id is absent.
	FindCRC32(id plumbing.ObjectID) (uint32, error)

	// Count returns the number of objects indexed.
	Count() int

	// Iterator returns entries in ascending id order.
	Iterator() EntryIter

	// PackChecksum is the trailing hash of the pack this index describes.
	PackChecksum() plumbing.ObjectID
}

// MemoryIndex is a fully decoded, in-memory pack index. Construction
// (Writer.CreateIndex, or Decode) sorts once; all lookups thereafter are
// binary searches within one fan-out bucket.
type MemoryIndex struct {
	hashSize int
	fanout   [256]uint32
	ids      []byte // hashSize bytes per entry, concatenated, sorted
	offsets  []uint64
	crc32    []uint32 // nil if this index was built without CRCs
	pack     plumbing.ObjectID
	self     plumbing.ObjectID
}

var _ Index = (*MemoryIndex)(nil)

func (idx *MemoryIndex) idAt(pos int) plumbing.ObjectID {
	start := pos * idx.hashSize
	return plumbing.NewObjectID(idx.ids[start : start+idx.hashSize])
}

func (idx *MemoryIndex) bucket(first byte) (lo, hi int) {
	if first > 0 {
		lo = int(idx.fanout[first-1])
	}
	hi = int(idx.fanout[first])
	return
}

func (idx *MemoryIndex) search(id plumbing.ObjectID) (int, bool) {
	lo, hi := idx.bucket(id.FirstByte())
	want := id.Bytes()
	pos := lo + sort.Search(hi-lo, func(i int) bool {
		return idx.idAt(lo+i).Compare(want) >= 0
	})
	if pos < hi && idx.idAt(pos).Compare(want) == 0 {
		return pos, true
	}
	return 0, false
}

// FindOffset implements Index.
func (idx *MemoryIndex) FindOffset(id plumbing.ObjectID) (int64, error) {
	pos, found := idx.search(id)
	if !found {
		return 0, plumbing.ErrObjectNotFound
	}
	return int64(idx.offsets[pos]), nil
}

// HasCRC32 implements Index.
func (idx *MemoryIndex) HasCRC32() bool { return idx.crc32 != nil }

// FindCRC32 implements Index.
func (idx *MemoryIndex) FindCRC32(id plumbing.ObjectID) (uint32, error) {
	if idx.crc32 == nil {
		return 0, plumbing.ErrObjectNotFound
	}
	pos, found := idx.search(id)
	if !found {
		return 0, plumbing.ErrObjectNotFound
	}
	return idx.crc32[pos], nil
}

// Count implements Index.
func (idx *MemoryIndex) Count() int { return int(idx.fanout[255]) }

// PackChecksum implements Index.
func (idx *MemoryIndex) PackChecksum() plumbing.ObjectID { return idx.pack }

// Checksum returns the trailing hash of the index file itself.
func (idx *MemoryIndex) Checksum() plumbing.ObjectID { return idx.self }

type memoryEntryIter struct {
	idx *MemoryIndex
	pos int
}

func (it *memoryEntryIter) Next() (*Entry, error) {
	if it.pos >= it.idx.Count() {
		return nil, io.EOF
	}
	e := &Entry{ID: it.idx.idAt(it.pos), Offset: it.idx.offsets[it.pos]}
	if it.idx.crc32 != nil {
		e.CRC32 = it.idx.crc32[it.pos]
	}
	it.pos++
	return e, nil
}

// Iterator implements Index.
func (idx *MemoryIndex) Iterator() EntryIter {
	return &memoryEntryIter{idx: idx}
}

// Contains reports whether id is present, without exposing its offset.
func (idx *MemoryIndex) Contains(id plumbing.ObjectID) bool {
	_, found := idx.search(id)
	return found
}
