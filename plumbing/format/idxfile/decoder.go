package idxfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ketchgit/core/plumbing"
)

// Decode reads a version-2 pack index fully into memory. hashSize must
// match the object id width used by the pack this index describes (20
// for SHA-1, 32 for SHA-256); the format carries no self-description of
// hash size, so the caller supplies it from repository configuration.
func Decode(r io.Reader, hashSize int) (*MemoryIndex, error) {
	br := newCountingReader(r)

	header := make([]byte, 8)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIndex, err)
	}
	if !bytes.Equal(header[:4], Header) {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidIndex)
	}
	if version := binary.BigEndian.Uint32(header[4:]); version != VersionSupported {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidIndex, version)
	}

	idx := &MemoryIndex{hashSize: hashSize}
	fanoutBuf := make([]byte, 256*4)
	if _, err := io.ReadFull(br, fanoutBuf); err != nil {
		return nil, fmt.Errorf("%w: fan-out table: %w", ErrInvalidIndex, err)
	}
	for i := range idx.fanout {
		idx.fanout[i] = binary.BigEndian.Uint32(fanoutBuf[i*4 : i*4+4])
	}

	count := int(idx.fanout[255])
	idx.ids = make([]byte, count*hashSize)
	if _, err := io.ReadFull(br, idx.ids); err != nil {
		return nil, fmt.Errorf("%w: id table: %w", ErrInvalidIndex, err)
	}

	idx.crc32 = make([]uint32, count)
	crcBuf := make([]byte, 4)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(br, crcBuf); err != nil {
			return nil, fmt.Errorf("%w: crc32 table: %w", ErrInvalidIndex, err)
		}
		idx.crc32[i] = binary.BigEndian.Uint32(crcBuf)
	}

	off32 := make([]uint32, count)
	needsLarge := false
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(br, crcBuf); err != nil {
			return nil, fmt.Errorf("%w: offset table: %w", ErrInvalidIndex, err)
		}
		v := binary.BigEndian.Uint32(crcBuf)
		off32[i] = v
		if v&0x80000000 != 0 {
			needsLarge = true
		}
	}

	// The large-offset table has no explicit length field: its length is
	// implied by everything left before the two trailing checksums.
	var large []uint64
	if needsLarge {
		largeCount := (br.buf.Len() - 2*hashSize) / 8
		if largeCount < 0 {
			return nil, fmt.Errorf("%w: truncated large offset table", ErrInvalidIndex)
		}
		largeBuf := make([]byte, 8*largeCount)
		if _, err := io.ReadFull(br, largeBuf); err != nil {
			return nil, fmt.Errorf("%w: large offset table: %w", ErrInvalidIndex, err)
		}
		large = make([]uint64, largeCount)
		for i := range large {
			large[i] = binary.BigEndian.Uint64(largeBuf[i*8 : i*8+8])
		}
	}

	idx.offsets = make([]uint64, count)
	for i, v := range off32 {
		if v&0x80000000 != 0 {
			li := int(v &^ 0x80000000)
			if li >= len(large) {
				return nil, fmt.Errorf("%w: large offset index out of range", ErrInvalidIndex)
			}
			idx.offsets[i] = large[li]
		} else {
			idx.offsets[i] = uint64(v)
		}
	}

	packHash := make([]byte, hashSize)
	if _, err := io.ReadFull(br, packHash); err != nil {
		return nil, fmt.Errorf("%w: pack checksum: %w", ErrInvalidIndex, err)
	}
	idx.pack = plumbing.NewObjectID(packHash)

	selfHash := make([]byte, hashSize)
	if _, err := io.ReadFull(br, selfHash); err != nil {
		return nil, fmt.Errorf("%w: index checksum: %w", ErrInvalidIndex, err)
	}
	idx.self = plumbing.NewObjectID(selfHash)

	return idx, nil
}

// countingReader buffers the whole index into memory up front so the
// large-offset table's implicit length (total bytes minus the trailing
// checksums) can be computed once the fixed-size tables have been read.
type countingReader struct {
	buf *bytes.Buffer
}

func newCountingReader(r io.Reader) *countingReader {
	data, _ := io.ReadAll(r)
	return &countingReader{buf: bytes.NewBuffer(data)}
}

func (c *countingReader) Read(p []byte) (int, error) { return c.buf.Read(p) }
