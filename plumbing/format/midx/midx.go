// Package midx implements the multi-pack index (MIDX): an ordered map
// from object id to (pack id, offset) across many packs, unifying their
// keyspaces under one fan-out and id table, plus a reverse (bitmap-order)
// index used by bitmap-indexed reachability queries.
package midx

import (
	"errors"
	"sort"

	"github.com/ketchgit/core/plumbing"
)

// ErrFormat is returned when a MIDX fails a structural check: bad magic,
// unsupported version, or a fan-out entry that overflows uint32. It is
// non-fatal to the caller's open path — the object-database layer may
// proceed without a MIDX per §7.
var ErrFormat = errors.New("invalid multi-pack index")

// packRange is the reverse-index slice for one pack: the bitmap
// positions [First, First+Count) that belong to it.
type packRange struct {
	First uint32
	Count uint32
}

// MultiPackIndex is the fully decoded, in-memory multi-pack index.
type MultiPackIndex struct {
	hashSize int
	packs    []string // position = pack id; order is construction order

	fanout [256]uint32
	ids    []byte // hashSize bytes per entry, concatenated, sorted & deduped

	packOf  []int32  // per id-table position, pack id
	offsets []uint64 // per id-table position, resolved pack-byte offset

	// reverse index: for each pack, the contiguous bitmap-position range
	// it occupies, and the id-table position named at each bitmap
	// position (see §4.2 getObjectAt / findBitmapPosition).
	ranges      []packRange
	bitmapOrder []int32 // bitmapOrder[bitmapPos] = id-table position

	checksum plumbing.ObjectID

	// stats collected during construction (§4.2 "Statistics collected in
	// one pass").
	stats Stats
}

// Stats holds the single-pass statistics a MultiPackIndex build collects.
type Stats struct {
	UniqueObjects     int
	PerPackSelected   []int // indexed by pack id
	NeedsLargeOffsets bool
	OverHalfGigCount  int // offsets > 2^31-1
}

// PackNames returns the ordered list of pack names; position is pack id.
func (m *MultiPackIndex) PackNames() []string { return append([]string(nil), m.packs...) }

// Stats returns the construction-time statistics.
func (m *MultiPackIndex) Stats() Stats { return m.stats }

// Checksum is the trailing content hash of the MIDX.
func (m *MultiPackIndex) Checksum() plumbing.ObjectID { return m.checksum }

// GetObjectCount returns the number of unique objects indexed, equal to
// fanout[255].
func (m *MultiPackIndex) GetObjectCount() int { return int(m.fanout[255]) }

func (m *MultiPackIndex) idAt(pos int) plumbing.ObjectID {
	start := pos * m.hashSize
	return plumbing.NewObjectID(m.ids[start : start+m.hashSize])
}

func (m *MultiPackIndex) bucket(first byte) (lo, hi int) {
	if first > 0 {
		lo = int(m.fanout[first-1])
	}
	hi = int(m.fanout[first])
	return
}

// FindPosition returns the dense id-table index of id, or -1 if absent.
func (m *MultiPackIndex) FindPosition(id plumbing.ObjectID) int {
	lo, hi := m.bucket(id.FirstByte())
	want := id.Bytes()
	pos := lo + sort.Search(hi-lo, func(i int) bool {
		return m.idAt(lo+i).Compare(want) >= 0
	})
	if pos < hi && m.idAt(pos).Compare(want) == 0 {
		return pos
	}
	return -1
}

// Find resolves id to the pack it lives in (by pack id, see PackNames)
// and its byte offset within that pack.
func (m *MultiPackIndex) Find(id plumbing.ObjectID) (packID int, offset uint64, ok bool) {
	pos := m.FindPosition(id)
	if pos < 0 {
		return 0, 0, false
	}
	return int(m.packOf[pos]), m.offsets[pos], true
}

// GetObjectAt materializes the id at a given dense id-table position.
func (m *MultiPackIndex) GetObjectAt(position int) (plumbing.ObjectID, bool) {
	if position < 0 || position >= m.GetObjectCount() {
		return plumbing.ObjectID{}, false
	}
	return m.idAt(position), true
}

// FindBitmapPosition scans the reverse-index range for packID and
// binary-searches it by offset, returning the bitmap-order position of
// the (packID, offset) pair.
func (m *MultiPackIndex) FindBitmapPosition(packID int, offset uint64) (int, bool) {
	if packID < 0 || packID >= len(m.ranges) {
		return 0, false
	}
	r := m.ranges[packID]
	lo, hi := int(r.First), int(r.First+r.Count)
	pos := lo + sort.Search(hi-lo, func(i int) bool {
		return m.offsets[m.bitmapOrder[lo+i]] >= offset
	})
	if pos < hi && m.offsets[m.bitmapOrder[pos]] == offset {
		return pos, true
	}
	return 0, false
}

// GetObjectAtBitmapPosition materializes the id named at a bitmap-order
// position, the inverse of FindBitmapPosition(Find(id)).
func (m *MultiPackIndex) GetObjectAtBitmapPosition(bitmapPos int) (plumbing.ObjectID, bool) {
	if bitmapPos < 0 || bitmapPos >= len(m.bitmapOrder) {
		return plumbing.ObjectID{}, false
	}
	return m.idAt(int(m.bitmapOrder[bitmapPos])), true
}

// Resolve performs a prefix search: it lands on a candidate via binary
// search for the first id not less than prefix, then scans forward while
// the prefix still matches, appending at most limit matches to out. limit<=0 means no
// limit. An empty id table yields no matches.
func (m *MultiPackIndex) Resolve(prefix []byte, limit int, out *[]plumbing.ObjectID) {
	if len(prefix) == 0 || m.GetObjectCount() == 0 {
		return
	}
	lo, hi := m.bucket(prefix[0])
	start := lo + sort.Search(hi-lo, func(i int) bool {
		return m.idAt(lo+i).Compare(prefix) >= 0
	})
	for i := start; i < hi; i++ {
		if !m.idAt(i).HasPrefixAt(prefix) {
			break
		}
		*out = append(*out, m.idAt(i))
		if limit > 0 && len(*out) >= limit {
			return
		}
	}
}
