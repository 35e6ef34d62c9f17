package packfile

import "io"

const maskContinue = 0x80

// readTypeAndSize parses a pack object's variable-length header: the
// first byte carries the type in bits 6-4 and the low 4 size bits; each
// continuation byte contributes 7 more size bits, least-significant
// chunk first.
func readTypeAndSize(r io.ByteReader) (typ byte, size int64, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	typ = (b >> 4) & 0x07
	size = int64(b & 0x0f)
	shift := uint(4)
	for b&maskContinue != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		size |= int64(b&0x7f) << shift
		shift += 7
	}
	return typ, size, nil
}

// readOffsetDelta parses the OFS_DELTA negative base offset encoding: a
// base-128 big-endian varint where every byte but the last has bit 7 set,
// and each continuation adds 1 before shifting (git's "offset encoding",
// distinct from the header's length encoding).
func readOffsetDelta(r io.ByteReader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	off := int64(b & 0x7f)
	for b&maskContinue != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		off = ((off + 1) << 7) | int64(b&0x7f)
	}
	return off, nil
}
