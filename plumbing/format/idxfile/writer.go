package idxfile

import (
	"sort"

	"github.com/ketchgit/core/plumbing"
)

type indexedObject struct {
	id     plumbing.ObjectID
	offset int64
	crc32  uint32
}

type indexedObjects []indexedObject

func (o indexedObjects) Len() int      { return len(o) }
func (o indexedObjects) Swap(i, j int) { o[i], o[j] = o[j], o[i] }
func (o indexedObjects) Less(i, j int) bool {
	return o[i].id.Compare(o[j].id.Bytes()) < 0
}

// Writer accumulates (id, offset, crc32) triples observed while scanning
// a pack — typically from a packfile.Scanner or FsckPackParser — and
// produces the corresponding MemoryIndex.
//
// Add may be called in any order; CreateIndex sorts once.
type Writer struct {
	hashSize int
	pack     plumbing.ObjectID
	objects  indexedObjects
}

// NewWriter returns a Writer for object ids of the given size (20 for
// SHA-1, 32 for SHA-256).
func NewWriter(hashSize int) *Writer {
	return &Writer{hashSize: hashSize}
}

// Add records one object's id, offset, and CRC32.
func (w *Writer) Add(id plumbing.ObjectID, offset int64, crc uint32) {
	w.objects = append(w.objects, indexedObject{id, offset, crc})
}

// SetPackChecksum records the trailing hash of the pack being indexed.
func (w *Writer) SetPackChecksum(pack plumbing.ObjectID) {
	w.pack = pack
}

// CreateIndex builds the sorted MemoryIndex from everything added so far.
func (w *Writer) CreateIndex() *MemoryIndex {
	sort.Sort(w.objects)

	idx := &MemoryIndex{
		hashSize: w.hashSize,
		pack:     w.pack,
		ids:      make([]byte, len(w.objects)*w.hashSize),
		offsets:  make([]uint64, len(w.objects)),
		crc32:    make([]uint32, len(w.objects)),
	}

	last := -1
	for i, o := range w.objects {
		fan := int(o.id.FirstByte())
		for j := last + 1; j < fan; j++ {
			idx.fanout[j] = uint32(i)
		}
		idx.fanout[fan] = uint32(i + 1)
		last = fan

		copy(idx.ids[i*w.hashSize:], o.id.Bytes())
		idx.offsets[i] = uint64(o.offset)
		idx.crc32[i] = o.crc32
	}
	for j := last + 1; j < 256; j++ {
		idx.fanout[j] = uint32(len(w.objects))
	}

	return idx
}
