package midx

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	"github.com/ketchgit/core/plumbing"
	"github.com/pjbgf/sha1cd"
)

// Chunk ids, as 4-byte big-endian-encoded ASCII tags in the lookup table.
var (
	chunkOIDF = [4]byte{'O', 'I', 'D', 'F'}
	chunkOIDL = [4]byte{'O', 'I', 'D', 'L'}
	chunkOOFF = [4]byte{'O', 'O', 'F', 'F'}
	chunkLOFF = [4]byte{'L', 'O', 'F', 'F'}
	chunkPNAM = [4]byte{'P', 'N', 'A', 'M'}
	chunkRIDX = [4]byte{'R', 'I', 'D', 'X'}
	chunkBTMP = [4]byte{'B', 'T', 'M', 'P'}
)

const midxMagic = "MIDX"
const midxVersion = 1

func objectIDVersion(hashSize int) byte {
	if hashSize == plumbing.SHA256Size {
		return 2
	}
	return 1
}

func newMidxHash(hashSize int) hash.Hash {
	if hashSize == plumbing.SHA256Size {
		return sha256.New()
	}
	return sha1cd.New()
}

type chunkWriter struct {
	id   [4]byte
	data []byte
}

// Encode writes m in the chunk-based multi-pack index format of §6: a
// fixed header, a chunk lookup table, the named chunks in lookup-table
// order, then a trailing content checksum.
func Encode(w io.Writer, m *MultiPackIndex) (plumbing.ObjectID, error) {
	names := bytes.Buffer{}
	for _, n := range m.packs {
		names.WriteString(n)
		names.WriteByte(0)
	}

	fanoutBuf := make([]byte, 256*4)
	for i, v := range m.fanout {
		binary.BigEndian.PutUint32(fanoutBuf[i*4:], v)
	}

	n := m.GetObjectCount()
	ooffBuf := make([]byte, n*8)
	var loffBuf bytes.Buffer
	for i := 0; i < n; i++ {
		off := m.offsets[i]
		var enc uint32
		if off > 0x7fffffff {
			enc = 0x80000000 | uint32(loffBuf.Len()/8)
			b8 := make([]byte, 8)
			binary.BigEndian.PutUint64(b8, off)
			loffBuf.Write(b8)
		} else {
			enc = uint32(off)
		}
		binary.BigEndian.PutUint32(ooffBuf[i*8:], uint32(m.packOf[i]))
		binary.BigEndian.PutUint32(ooffBuf[i*8+4:], enc)
	}

	ridxBuf := make([]byte, len(m.bitmapOrder)*4)
	for i, v := range m.bitmapOrder {
		binary.BigEndian.PutUint32(ridxBuf[i*4:], uint32(v))
	}

	btmpBuf := make([]byte, len(m.ranges)*8)
	for i, r := range m.ranges {
		binary.BigEndian.PutUint32(btmpBuf[i*8:], r.First)
		binary.BigEndian.PutUint32(btmpBuf[i*8+4:], r.Count)
	}

	chunks := []chunkWriter{
		{chunkOIDF, fanoutBuf},
		{chunkOIDL, m.ids},
		{chunkOOFF, ooffBuf},
	}
	if loffBuf.Len() > 0 {
		chunks = append(chunks, chunkWriter{chunkLOFF, loffBuf.Bytes()})
	}
	chunks = append(chunks,
		chunkWriter{chunkPNAM, names.Bytes()},
		chunkWriter{chunkRIDX, ridxBuf},
		chunkWriter{chunkBTMP, btmpBuf},
	)

	h := newMidxHash(m.hashSize)
	mw := io.MultiWriter(w, h)

	if _, err := mw.Write([]byte(midxMagic)); err != nil {
		return plumbing.ObjectID{}, err
	}
	header := []byte{midxVersion, objectIDVersion(m.hashSize), byte(len(chunks)), 0}
	if _, err := mw.Write(header); err != nil {
		return plumbing.ObjectID{}, err
	}
	packCountBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(packCountBuf, uint32(len(m.packs)))
	if _, err := mw.Write(packCountBuf); err != nil {
		return plumbing.ObjectID{}, err
	}

	lookupSize := (len(chunks) + 1) * 12
	headerSize := int64(4 + 4 + 4)
	offset := headerSize + int64(lookupSize)
	for _, c := range chunks {
		entry := make([]byte, 12)
		copy(entry[:4], c.id[:])
		binary.BigEndian.PutUint64(entry[4:], uint64(offset))
		if _, err := mw.Write(entry); err != nil {
			return plumbing.ObjectID{}, err
		}
		offset += int64(len(c.data))
	}
	terminator := make([]byte, 12)
	binary.BigEndian.PutUint64(terminator[4:], uint64(offset))
	if _, err := mw.Write(terminator); err != nil {
		return plumbing.ObjectID{}, err
	}

	for _, c := range chunks {
		if _, err := mw.Write(c.data); err != nil {
			return plumbing.ObjectID{}, err
		}
	}

	self := plumbing.NewObjectID(h.Sum(nil)[:m.hashSize])
	if _, err := w.Write(self.Bytes()); err != nil {
		return plumbing.ObjectID{}, err
	}
	return self, nil
}

// Decode reads a chunk-based multi-pack index fully into memory.
func Decode(r io.Reader, hashSize int) (*MultiPackIndex, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: too small", ErrFormat)
	}
	if string(data[:4]) != midxMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrFormat)
	}
	version, _, chunkCount, _ := data[4], data[5], int(data[6]), data[7]
	if version != midxVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, version)
	}
	packCount := int(binary.BigEndian.Uint32(data[8:12]))

	lookupStart := 12
	lookupSize := (chunkCount + 1) * 12
	if lookupStart+lookupSize > len(data) {
		return nil, fmt.Errorf("%w: truncated chunk table", ErrFormat)
	}

	type chunkLoc struct {
		id     [4]byte
		offset int64
	}
	var locs []chunkLoc
	for i := 0; i <= chunkCount; i++ {
		e := data[lookupStart+i*12 : lookupStart+i*12+12]
		var id [4]byte
		copy(id[:], e[:4])
		locs = append(locs, chunkLoc{id, int64(binary.BigEndian.Uint64(e[4:]))})
	}

	chunkBytes := func(id [4]byte) ([]byte, bool) {
		for i := 0; i < len(locs)-1; i++ {
			if locs[i].id == id {
				start, end := locs[i].offset, locs[i+1].offset
				if start < 0 || end > int64(len(data)) || start > end {
					return nil, false
				}
				return data[start:end], true
			}
		}
		return nil, false
	}

	m := &MultiPackIndex{hashSize: hashSize}

	oidf, ok := chunkBytes(chunkOIDF)
	if !ok || len(oidf) != 256*4 {
		return nil, fmt.Errorf("%w: missing or malformed OIDF chunk", ErrFormat)
	}
	for i := range m.fanout {
		m.fanout[i] = binary.BigEndian.Uint32(oidf[i*4:])
	}
	n := int(m.fanout[255])

	oidl, ok := chunkBytes(chunkOIDL)
	if !ok || len(oidl) != n*hashSize {
		return nil, fmt.Errorf("%w: missing or malformed OIDL chunk", ErrFormat)
	}
	m.ids = append([]byte(nil), oidl...)

	ooff, ok := chunkBytes(chunkOOFF)
	if !ok || len(ooff) != n*8 {
		return nil, fmt.Errorf("%w: missing or malformed OOFF chunk", ErrFormat)
	}
	loff, hasLoff := chunkBytes(chunkLOFF)

	m.packOf = make([]int32, n)
	m.offsets = make([]uint64, n)
	for i := 0; i < n; i++ {
		m.packOf[i] = int32(binary.BigEndian.Uint32(ooff[i*8:]))
		v := binary.BigEndian.Uint32(ooff[i*8+4:])
		if v&0x80000000 != 0 {
			li := int(v &^ 0x80000000)
			if !hasLoff || (li+1)*8 > len(loff) {
				return nil, fmt.Errorf("%w: large offset index out of range", ErrFormat)
			}
			m.offsets[i] = binary.BigEndian.Uint64(loff[li*8:])
		} else {
			m.offsets[i] = uint64(v)
		}
	}

	pnam, ok := chunkBytes(chunkPNAM)
	if !ok {
		return nil, fmt.Errorf("%w: missing PNAM chunk", ErrFormat)
	}
	names := bytes.Split(bytes.TrimSuffix(pnam, []byte{0}), []byte{0})
	if len(names) != packCount {
		return nil, fmt.Errorf("%w: pack count mismatch", ErrFormat)
	}
	for _, nm := range names {
		m.packs = append(m.packs, string(nm))
	}

	if ridx, ok := chunkBytes(chunkRIDX); ok {
		m.bitmapOrder = make([]int32, len(ridx)/4)
		for i := range m.bitmapOrder {
			m.bitmapOrder[i] = int32(binary.BigEndian.Uint32(ridx[i*4:]))
		}
	}
	if btmp, ok := chunkBytes(chunkBTMP); ok {
		m.ranges = make([]packRange, len(btmp)/8)
		for i := range m.ranges {
			m.ranges[i] = packRange{
				First: binary.BigEndian.Uint32(btmp[i*8:]),
				Count: binary.BigEndian.Uint32(btmp[i*8+4:]),
			}
		}
	}

	trailer := data[len(data)-hashSize:]
	m.checksum = plumbing.NewObjectID(append([]byte(nil), trailer...))

	m.stats = Stats{UniqueObjects: n}
	for _, pid := range m.packOf {
		for len(m.stats.PerPackSelected) <= int(pid) {
			m.stats.PerPackSelected = append(m.stats.PerPackSelected, 0)
		}
		m.stats.PerPackSelected[pid]++
	}
	m.stats.NeedsLargeOffsets = hasLoff
	for _, off := range m.offsets {
		if off > 0x7fffffff {
			m.stats.OverHalfGigCount++
		}
	}

	return m, nil
}
