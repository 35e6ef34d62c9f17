package midx

import (
	"fmt"
	"sort"

	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/format/idxfile"
)

// Build constructs a MultiPackIndex from an ordered mapping of pack-name
// to PackIndex (order is significant: earliest pack wins on duplicate
// ids). It drives a PackIndexMerger's BySha1Iterator once, then derives
// the reverse (bitmap-order) index described in §4.2.
func Build(packNames []string, indices []idxfile.Index, hashSize int) (*MultiPackIndex, error) {
	if len(packNames) != len(indices) {
		return nil, fmt.Errorf("midx: %d pack names for %d indices", len(packNames), len(indices))
	}

	merger := NewPackIndexMerger(packNames, indices, hashSize)
	it, err := merger.BySha1Iterator(indices)
	if err != nil {
		return nil, err
	}

	var ids []byte
	var packOf []int32
	var offsets []uint64
	var fanout [256]uint32
	last := -1
	pos := 0
	for {
		e, err := it.Next()
		if err != nil {
			break
		}
		fan := int(e.ID.FirstByte())
		for j := last + 1; j < fan; j++ {
			fanout[j] = uint32(pos)
		}
		fanout[fan] = uint32(pos + 1)
		last = fan

		ids = append(ids, e.ID.Bytes()...)
		packOf = append(packOf, int32(e.PackID))
		offsets = append(offsets, e.Offset)
		pos++
	}
	for j := last + 1; j < 256; j++ {
		fanout[j] = uint32(pos)
	}

	// §4.2: fan-out entries must fit in a uint32, and the implementation
	// fails deterministically if any exceeds the representable domain.
	// pos itself is bounded by int; an int-based fanout can only overflow
	// uint32 on a build with >2^32 objects, which we reject explicitly.
	if uint64(pos) > 0xffffffff {
		return nil, fmt.Errorf("%w: fan-out entry overflows uint32 (%d objects)", ErrFormat, pos)
	}

	m := &MultiPackIndex{
		hashSize: hashSize,
		packs:    append([]string(nil), packNames...),
		fanout:   fanout,
		ids:      ids,
		packOf:   packOf,
		offsets:  offsets,
		stats: Stats{
			UniqueObjects:     merger.UniqueCount(),
			PerPackSelected:   merger.PerPackSelected(),
			NeedsLargeOffsets: merger.NeedsLargeOffsets(),
			OverHalfGigCount:  merger.Over31BitCount(),
		},
	}
	m.buildReverseIndex()
	return m, nil
}

// buildReverseIndex assigns each object a bitmap-order position: objects
// are grouped by pack id (construction order) and, within a pack, sorted
// by ascending byte offset. This mirrors how a pack's reachability bitmap
// is laid out: pack-sequential, offset-ascending.
func (m *MultiPackIndex) buildReverseIndex() {
	type posOff struct {
		pos int32
		off uint64
	}
	byPack := make([][]posOff, len(m.packs))
	for pos, pid := range m.packOf {
		byPack[pid] = append(byPack[pid], posOff{int32(pos), m.offsets[pos]})
	}

	m.ranges = make([]packRange, len(m.packs))
	m.bitmapOrder = make([]int32, 0, len(m.packOf))

	var cursor uint32
	for pid, entries := range byPack {
		sort.Slice(entries, func(i, j int) bool { return entries[i].off < entries[j].off })
		m.ranges[pid] = packRange{First: cursor, Count: uint32(len(entries))}
		for _, e := range entries {
			m.bitmapOrder = append(m.bitmapOrder, e.pos)
		}
		cursor += uint32(len(entries))
	}
}
