package packfile

import (
	"fmt"
	"io"

	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/format/idxfile"
)

// CorruptPackIndex kind constants (§4.4 cross-check report).
const (
	MissingObj     = "MISSING_OBJ"     // in the pack, absent from the index
	MismatchOffset = "MISMATCH_OFFSET" // index offset disagrees with the pack
	MismatchCRC    = "MISMATCH_CRC"    // index CRC32 disagrees with the pack
	MissingCRC     = "MISSING_CRC"     // index has no CRC32 table at all
	UnknownObj     = "UNKNOWN_OBJ"     // in the index, never seen in the pack
)

// CorruptObject reports an object the Fsck scan could not validate: a
// broken delta chain, an unresolvable base, or a structural check
// failure from the ObjectChecker.
type CorruptObject struct {
	Offset int64
	Type   plumbing.ObjectType
	ID     plumbing.ObjectID // zero if the object's id could not be determined; the missing base's id for an unresolvable REF_DELTA
	Err    error
}

// CorruptPackIndex reports one disagreement found by verifyIndex between
// what the pack actually contains and what an existing index claims.
type CorruptPackIndex struct {
	Kind   string
	ID     plumbing.ObjectID
	Offset int64
	Detail string
}

// FsckResult is the outcome of one FsckPackParser.Parse call. A pack with
// no CorruptObjects and no IndexErrors is sound with respect to the index
// it was checked against.
type FsckResult struct {
	ObjectCount    int
	CorruptObjects []CorruptObject
	IndexErrors    []CorruptPackIndex
	Checksum       plumbing.ObjectID
}

// ObjectChecker inspects one fully-inflated object's content, beyond what
// the pack format itself guarantees (well-formed tree entries, required
// commit headers, and so on). A nil ObjectChecker skips this step.
type ObjectChecker interface {
	Check(id plumbing.ObjectID, t plumbing.ObjectType, content []byte) error
}

// resolvedObject is a fully-inflated, fully-identified pack entry: either
// a whole object as scanned, or a delta applied against its base.
type resolvedObject struct {
	Type    plumbing.ObjectType
	Content []byte
	ID      plumbing.ObjectID
}

// FsckPackParser re-scans a pack end to end, recomputing each object's id
// and CRC32 independent of any index, and optionally cross-checks the
// result against an existing idxfile.Index (Property #4, Scenario S5).
// Unlike the construction path, it never trusts the pack's own claims: a
// corrupt or hostile pack can only make Parse report corruption, not
// panic or loop forever, because every resolution step is bounded by the
// fixed number of entries the header announces.
type FsckPackParser struct {
	src      BlockSource
	hashSize int
	checker  ObjectChecker
}

// NewFsckPackParser builds a parser over src (hashSize selects SHA-1 or
// SHA-256 addressing). checker may be nil to skip content-level checks.
func NewFsckPackParser(src BlockSource, hashSize int, checker ObjectChecker) *FsckPackParser {
	return &FsckPackParser{src: src, hashSize: hashSize, checker: checker}
}

func (p *FsckPackParser) hashContent(t plumbing.ObjectType, content []byte) plumbing.ObjectID {
	h := plumbing.NewHasher(p.hashSize, t, int64(len(content)))
	h.Write(content)
	return h.Sum()
}

// Parse scans the whole pack. If idx is non-nil, Parse also cross-checks
// every resolved object against it and reports mismatches in
// FsckResult.IndexErrors; idx may be nil to only validate the pack's
// internal consistency.
func (p *FsckPackParser) Parse(idx idxfile.Index) (*FsckResult, error) {
	scanner := NewScanner(NewSequentialReader(p.src), p.hashSize)
	if _, err := scanner.ReadHeader(); err != nil {
		return nil, err
	}

	result := &FsckResult{}
	byOffset := make(map[int64]*resolvedObject)
	byID := make(map[plumbing.ObjectID]*resolvedObject)
	crcByOffset := make(map[int64]uint32)
	var pendingRef []*ObjectHeader

	for {
		oh, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		result.ObjectCount++
		crcByOffset[oh.Offset] = oh.CRC32

		switch {
		case oh.Type == plumbing.OFSDeltaObject:
			base, ok := byOffset[oh.BaseOffset]
			if !ok {
				result.CorruptObjects = append(result.CorruptObjects, CorruptObject{
					Offset: oh.Offset, Type: oh.Type, Err: fmt.Errorf("%w: base at offset %d", ErrBaseNotFound, oh.BaseOffset),
				})
				continue
			}
			p.resolveDelta(oh, base, byOffset, byID, result)

		case oh.Type == plumbing.REFDeltaObject:
			base, ok := byID[oh.BaseID]
			if !ok {
				pendingRef = append(pendingRef, oh)
				continue
			}
			p.resolveDelta(oh, base, byOffset, byID, result)

		default:
			id := p.hashContent(oh.Type, oh.Content)
			ro := &resolvedObject{Type: oh.Type, Content: oh.Content, ID: id}
			byOffset[oh.Offset] = ro
			byID[id] = ro
			p.runChecker(id, ro, oh.Offset, result)
		}
	}

	// Ref-deltas may name a base recorded later in the pack; retry to a
	// fixpoint before giving up on the remainder as unresolvable.
	for progress := true; progress && len(pendingRef) > 0; {
		progress = false
		var still []*ObjectHeader
		for _, oh := range pendingRef {
			if base, ok := byID[oh.BaseID]; ok {
				p.resolveDelta(oh, base, byOffset, byID, result)
				progress = true
			} else {
				still = append(still, oh)
			}
		}
		pendingRef = still
	}
	for _, oh := range pendingRef {
		result.CorruptObjects = append(result.CorruptObjects, CorruptObject{
			Offset: oh.Offset, Type: oh.Type, ID: oh.BaseID, Err: ErrBaseNotFound,
		})
	}

	checksum, err := scanner.Checksum()
	if err != nil {
		return nil, err
	}
	result.Checksum = checksum

	if idx != nil {
		p.verifyIndex(idx, byOffset, crcByOffset, result)
	}
	return result, nil
}

func (p *FsckPackParser) resolveDelta(
	oh *ObjectHeader, base *resolvedObject,
	byOffset map[int64]*resolvedObject, byID map[plumbing.ObjectID]*resolvedObject,
	result *FsckResult,
) {
	content, err := applyDelta(base.Content, oh.Content)
	if err != nil {
		result.CorruptObjects = append(result.CorruptObjects, CorruptObject{Offset: oh.Offset, Type: base.Type, Err: err})
		return
	}
	id := p.hashContent(base.Type, content)
	ro := &resolvedObject{Type: base.Type, Content: content, ID: id}
	byOffset[oh.Offset] = ro
	byID[id] = ro
	p.runChecker(id, ro, oh.Offset, result)
}

func (p *FsckPackParser) runChecker(id plumbing.ObjectID, ro *resolvedObject, offset int64, result *FsckResult) {
	if p.checker == nil {
		return
	}
	if err := p.checker.Check(id, ro.Type, ro.Content); err != nil {
		result.CorruptObjects = append(result.CorruptObjects, CorruptObject{Offset: offset, Type: ro.Type, ID: id, Err: err})
	}
}

// verifyIndex cross-checks every object the scan actually resolved
// against idx (offset and CRC32 agreement), then walks idx once more to
// find entries the pack scan never produced at all.
func (p *FsckPackParser) verifyIndex(
	idx idxfile.Index, byOffset map[int64]*resolvedObject, crcByOffset map[int64]uint32, result *FsckResult,
) {
	seen := make(map[plumbing.ObjectID]bool, len(byOffset))
	for offset, ro := range byOffset {
		seen[ro.ID] = true

		wantOffset, err := idx.FindOffset(ro.ID)
		if err != nil {
			result.IndexErrors = append(result.IndexErrors, CorruptPackIndex{Kind: MissingObj, ID: ro.ID, Offset: offset})
			continue
		}
		if wantOffset != offset {
			result.IndexErrors = append(result.IndexErrors, CorruptPackIndex{
				Kind: MismatchOffset, ID: ro.ID, Offset: offset,
				Detail: fmt.Sprintf("index has %d", wantOffset),
			})
		}

		if !idx.HasCRC32() {
			result.IndexErrors = append(result.IndexErrors, CorruptPackIndex{Kind: MissingCRC, ID: ro.ID, Offset: offset})
			continue
		}
		wantCRC, err := idx.FindCRC32(ro.ID)
		if err != nil {
			result.IndexErrors = append(result.IndexErrors, CorruptPackIndex{Kind: MissingCRC, ID: ro.ID, Offset: offset})
			continue
		}
		if wantCRC != crcByOffset[offset] {
			result.IndexErrors = append(result.IndexErrors, CorruptPackIndex{
				Kind: MismatchCRC, ID: ro.ID, Offset: offset,
				Detail: fmt.Sprintf("index has %08x, pack has %08x", wantCRC, crcByOffset[offset]),
			})
		}
	}

	it := idx.Iterator()
	for {
		e, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if !seen[e.ID] {
			result.IndexErrors = append(result.IndexErrors, CorruptPackIndex{Kind: UnknownObj, ID: e.ID, Offset: int64(e.Offset)})
		}
	}
}
