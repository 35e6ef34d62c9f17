package packfile

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/ketchgit/core/internal/gitsync"
	"github.com/ketchgit/core/internal/ioutil"
	"github.com/ketchgit/core/plumbing"
	"github.com/pjbgf/sha1cd"
)

var packSignature = [4]byte{'P', 'A', 'C', 'K'}

// Header is the 12-byte pack header: magic, version, object count.
type Header struct {
	Version     uint32
	ObjectCount uint32
}

// ObjectHeader describes one pack entry as the Scanner walks it. Content
// is the object's decompressed bytes, captured while computing CRC32 so
// callers never re-inflate.
type ObjectHeader struct {
	Offset        int64
	Type          plumbing.ObjectType // on-disk type; may be a delta type
	Size          int64               // announced inflated size
	ContentOffset int64
	BaseOffset    int64           // valid when Type == OFSDeltaObject
	BaseID        plumbing.ObjectID // valid when Type == REFDeltaObject
	CRC32         uint32
	Content       []byte
}

// Scanner walks a pack sequentially, yielding one ObjectHeader per entry.
// It computes each object's CRC32 over its header and compressed payload
// bytes as it goes, so a full scan is the only pass needed to validate a
// pack's content against an index.
type Scanner struct {
	r        *scannerReader
	crc      hash.Hash32
	packHash hash.Hash
	hashSize int

	header    Header
	headerSet bool
	index     uint32
}

// NewScanner wraps src (typically NewSequentialReader over a BlockSource)
// as a pack Scanner. hashSize selects the whole-pack trailer hasher
// (SHA1Size or SHA256Size).
func NewScanner(src io.Reader, hashSize int) *Scanner {
	s := &Scanner{
		crc:      crc32.NewIEEE(),
		hashSize: hashSize,
	}
	if hashSize == plumbing.SHA256Size {
		s.packHash = sha256.New()
	} else {
		s.packHash = sha1cd.New()
	}
	s.r = newScannerReader(src, io.MultiWriter(s.crc, s.packHash))
	return s
}

// ReadHeader parses and returns the 12-byte pack header. It must be
// called exactly once, before the first call to Next.
func (s *Scanner) ReadHeader() (Header, error) {
	var sig [4]byte
	if _, err := io.ReadFull(s.r, sig[:]); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if sig != packSignature {
		return Header{}, ErrBadSignature
	}

	var versionAndCount [8]byte
	if _, err := io.ReadFull(s.r, versionAndCount[:]); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrMalformedPack, err)
	}
	h := Header{
		Version:     binary.BigEndian.Uint32(versionAndCount[0:4]),
		ObjectCount: binary.BigEndian.Uint32(versionAndCount[4:8]),
	}
	if h.Version != 2 && h.Version != 3 {
		return Header{}, ErrUnsupportedVersion
	}
	s.header = h
	s.headerSet = true
	return h, nil
}

// ObjectCount returns the object count announced by the pack header, or
// override if a caller previously set one via SetObjectCountOverride
// (§4.4: Fsck can be told to ignore a corrupted announced count).
func (s *Scanner) ObjectCount() uint32 { return s.header.ObjectCount }

// SetObjectCountOverride replaces the header's announced object count,
// used when the caller already knows the true count from elsewhere (e.g.
// a trusted index) and wants to keep scanning past a corrupted header.
func (s *Scanner) SetObjectCountOverride(n uint32) { s.header.ObjectCount = n }

// Next reads the next object header and its full decompressed content,
// returning io.EOF once ObjectCount entries have been read.
func (s *Scanner) Next() (*ObjectHeader, error) {
	if !s.headerSet {
		return nil, fmt.Errorf("%w: ReadHeader was not called", ErrMalformedPack)
	}
	if s.index >= s.header.ObjectCount {
		return nil, io.EOF
	}
	s.index++

	if err := s.r.Flush(); err != nil {
		return nil, err
	}
	s.crc.Reset()

	offset := s.r.offset

	typByte, size, err := readTypeAndSize(s.r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading object header at %d: %v", ErrMalformedPack, offset, err)
	}
	typ := plumbing.ObjectType(typByte)
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: invalid object type %d at offset %d", ErrMalformedPack, typByte, offset)
	}

	oh := &ObjectHeader{Offset: offset, Type: typ, Size: size}

	switch typ {
	case plumbing.OFSDeltaObject:
		delta, err := readOffsetDelta(s.r)
		if err != nil {
			return nil, fmt.Errorf("%w: reading ofs-delta base at %d: %v", ErrMalformedPack, offset, err)
		}
		oh.BaseOffset = offset - delta
	case plumbing.REFDeltaObject:
		buf := make([]byte, s.hashSize)
		if _, err := io.ReadFull(s.r, buf); err != nil {
			return nil, fmt.Errorf("%w: reading ref-delta base at %d: %v", ErrMalformedPack, offset, err)
		}
		oh.BaseID = plumbing.NewObjectID(buf)
	}

	oh.ContentOffset = s.r.offset

	zr, err := gitsync.GetZlibReader(s.r)
	if err != nil {
		return nil, fmt.Errorf("%w: opening zlib stream at %d: %v", ErrMalformedPack, oh.ContentOffset, err)
	}
	defer gitsync.PutZlibReader(zr)

	var buf bytes.Buffer
	if _, err := ioutil.Copy(&buf, zr); err != nil {
		return nil, fmt.Errorf("%w: inflating object at %d: %v", ErrMalformedPack, offset, err)
	}
	oh.Content = buf.Bytes()

	if err := s.r.Flush(); err != nil {
		return nil, err
	}
	oh.CRC32 = s.crc.Sum32()

	return oh, nil
}

// Checksum reads and returns the trailing whole-pack checksum, validating
// it against the hash accumulated over every byte read so far. Call this
// once Next has returned io.EOF.
func (s *Scanner) Checksum() (plumbing.ObjectID, error) {
	if err := s.r.Flush(); err != nil {
		return plumbing.ObjectID{}, err
	}
	want := s.packHash.Sum(nil)[:s.hashSize]

	got := make([]byte, s.hashSize)
	if _, err := io.ReadFull(s.r, got); err != nil {
		return plumbing.ObjectID{}, fmt.Errorf("%w: reading pack checksum: %v", ErrMalformedPack, err)
	}
	if !bytes.Equal(want, got) {
		return plumbing.ObjectID{}, fmt.Errorf("%w: pack checksum mismatch", ErrMalformedPack)
	}
	return plumbing.NewObjectID(got), nil
}
