package midx

import (
	"container/heap"
	"io"

	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/format/idxfile"
)

// MergeEntry is one record produced by a PackIndexMerger iterator. Both
// RawIterator and BySha1Iterator hand back a pointer to the SAME MergeEntry
// on every call to Next, overwriting its fields in place — the merge
// touches every object in every pack, and a per-entry allocation reliably
// turns a sub-second operation into multiple seconds (§4.3, §9). Callers
// that need to retain a value must copy it.
type MergeEntry struct {
	ID     plumbing.ObjectID
	PackID int
	Offset uint64
	CRC32  uint32
}

// PackIndexMerger performs a deduplicating k-way merge of several pack
// indices into one sorted stream, keyed by pack-name order: on duplicate
// object ids across packs, the earliest pack in the order wins.
type PackIndexMerger struct {
	names    []string
	hashSize int

	unique            int
	needsLargeOffsets bool
	over31Bit         int
	perPackSelected   []int
}

// NewPackIndexMerger prepares a merger over packs, an ordered mapping of
// pack-name to PackIndex. Order is significant: position in the slice is
// pack id, and position determines which pack wins on duplicate ids.
func NewPackIndexMerger(names []string, indices []idxfile.Index, hashSize int) *PackIndexMerger {
	return &PackIndexMerger{names: names, hashSize: hashSize, perPackSelected: make([]int, len(indices))}
}

// PackNames returns the pack-name order the merger was constructed with.
func (m *PackIndexMerger) PackNames() []string { return append([]string(nil), m.names...) }

// UniqueCount returns the number of distinct object ids observed by the
// most recent BySha1Iterator walk to completion.
func (m *PackIndexMerger) UniqueCount() int { return m.unique }

// NeedsLargeOffsets reports whether any selected offset exceeded 2^32-1.
func (m *PackIndexMerger) NeedsLargeOffsets() bool { return m.needsLargeOffsets }

// Over31BitCount returns how many selected offsets exceeded 2^31-1.
func (m *PackIndexMerger) Over31BitCount() int { return m.over31Bit }

// PerPackSelected returns, per pack id, how many objects from that pack
// were selected (i.e. were not a duplicate shadowed by an earlier pack).
func (m *PackIndexMerger) PerPackSelected() []int { return append([]int(nil), m.perPackSelected...) }

// heapItem is one pack's cursor into its sorted entry stream.
type heapItem struct {
	packID int
	iter   idxfile.EntryIter
	cur    *idxfile.Entry
	done   bool
}

type entryHeap []*heapItem

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	c := h[i].cur.ID.Compare(h[j].cur.ID.Bytes())
	if c != 0 {
		return c < 0
	}
	// Ties broken by lowest iterator (pack) index, per §4.2.
	return h[i].packID < h[j].packID
}
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)        { *h = append(*h, x.(*heapItem)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// mergeIter drives the k-way merge described in §4.2/§4.3: at each step
// it selects the iterator whose current id is minimum, ties broken by
// lowest iterator index.
type mergeIter struct {
	h      entryHeap
	cursor MergeEntry
}

func newMergeIter(indices []idxfile.Index) (*mergeIter, error) {
	h := make(entryHeap, 0, len(indices))
	for i, idx := range indices {
		if idx == nil {
			continue
		}
		it := idx.Iterator()
		e, err := it.Next()
		if err == io.EOF {
			continue
		}
		if err != nil {
			return nil, err
		}
		h = append(h, &heapItem{packID: i, iter: it, cur: e})
	}
	heap.Init(&h)
	return &mergeIter{h: h}, nil
}

// next advances the merge, returning false once every source iterator is
// exhausted. RawIterator semantics: duplicates across packs are both
// emitted, in pack-name order on ties.
func (m *mergeIter) next() bool {
	if len(m.h) == 0 {
		return false
	}
	top := m.h[0]
	m.cursor = MergeEntry{ID: top.cur.ID, PackID: top.packID, Offset: top.cur.Offset, CRC32: top.cur.CRC32}

	nxt, err := top.iter.Next()
	if err != nil {
		heap.Pop(&m.h)
	} else {
		top.cur = nxt
		heap.Fix(&m.h, 0)
	}
	return true
}

// RawIterator yields every (id, pack, offset) triple from every pack, in
// sorted id order with duplicates preserved, ties broken by pack order.
type RawIterator struct{ m *mergeIter }

// RawIterator returns an iterator over every entry in every pack,
// including duplicates across packs.
func (merger *PackIndexMerger) RawIterator(indices []idxfile.Index) (*RawIterator, error) {
	m, err := newMergeIter(indices)
	if err != nil {
		return nil, err
	}
	return &RawIterator{m: m}, nil
}

// Next advances the iterator, returning io.EOF once exhausted. The
// returned *MergeEntry is reused across calls (see MergeEntry).
func (it *RawIterator) Next() (*MergeEntry, error) {
	if !it.m.next() {
		return nil, io.EOF
	}
	return &it.m.cursor, nil
}

// Sha1Iterator yields each object id exactly once: the dedup layer
// remembers only the last-emitted id, so it is safe to drive this
// iterator across tens to hundreds of millions of entries without
// building a set.
type Sha1Iterator struct {
	merger *PackIndexMerger
	m      *mergeIter
	last   plumbing.ObjectID
	havelast bool
}

// BySha1Iterator returns an iterator over the merged keyspace, each id
// exactly once with first-pack-wins semantics, and records the merger's
// single-pass statistics as it is driven to completion.
func (merger *PackIndexMerger) BySha1Iterator(indices []idxfile.Index) (*Sha1Iterator, error) {
	m, err := newMergeIter(indices)
	if err != nil {
		return nil, err
	}
	merger.unique = 0
	merger.needsLargeOffsets = false
	merger.over31Bit = 0
	for i := range merger.perPackSelected {
		merger.perPackSelected[i] = 0
	}
	return &Sha1Iterator{merger: merger, m: m}, nil
}

// Next advances the iterator, returning io.EOF once exhausted.
func (it *Sha1Iterator) Next() (*MergeEntry, error) {
	for {
		if !it.m.next() {
			return nil, io.EOF
		}
		e := it.m.cursor
		if it.havelast && it.last.Equal(e.ID) {
			continue // shadowed by an earlier pack in construction order
		}
		it.last = e.ID
		it.havelast = true

		it.merger.unique++
		if e.PackID >= 0 && e.PackID < len(it.merger.perPackSelected) {
			it.merger.perPackSelected[e.PackID]++
		}
		if e.Offset > 0xffffffff {
			it.merger.needsLargeOffsets = true
		}
		if e.Offset > 0x7fffffff {
			it.merger.over31Bit++
		}
		return &it.m.cursor, nil
	}
}
