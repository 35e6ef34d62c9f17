package packfile

import (
	"bytes"
	"errors"
)

// See https://github.com/git/git/blob/master/delta.h and patch-delta.c for
// the on-disk delta instruction format this decodes.

var (
	// ErrInvalidDelta is returned when a delta's header or instruction
	// stream is structurally broken.
	ErrInvalidDelta = errors.New("invalid delta")
	// ErrDeltaCmd is returned for an instruction byte that is neither a
	// copy-from-base nor a copy-from-delta command.
	ErrDeltaCmd = errors.New("unrecognized delta instruction")
)

const (
	maxCopySize  = 0x10000
	minDeltaSize = 4
)

type offsetBit struct {
	mask  byte
	shift uint
}

var copyOffsetBits = []offsetBit{{0x01, 0}, {0x02, 8}, {0x04, 16}, {0x08, 24}}
var copySizeBits = []offsetBit{{0x10, 0}, {0x20, 8}, {0x40, 16}}

func isCopyFromSrc(cmd byte) bool   { return cmd&maskContinue != 0 }
func isCopyFromDelta(cmd byte) bool { return cmd&maskContinue == 0 && cmd != 0 }

// decodeLEB128 decodes a delta-header size: 7 payload bits per byte,
// least-significant chunk first, continuation in bit 7.
func decodeLEB128(in []byte) (uint, []byte) {
	if len(in) == 0 {
		return 0, in
	}
	var num, shift uint
	var i int
	for {
		b := in[i]
		num |= uint(b&0x7f) << shift
		i++
		if b&maskContinue == 0 || i == len(in) {
			break
		}
		shift += 7
	}
	return num, in[i:]
}

func decodeOffset(cmd byte, delta []byte) (uint, []byte, error) {
	var offset uint
	for _, o := range copyOffsetBits {
		if cmd&o.mask != 0 {
			if len(delta) == 0 {
				return 0, nil, ErrInvalidDelta
			}
			offset |= uint(delta[0]) << o.shift
			delta = delta[1:]
		}
	}
	return offset, delta, nil
}

func decodeSize(cmd byte, delta []byte) (uint, []byte, error) {
	var sz uint
	for _, s := range copySizeBits {
		if cmd&s.mask != 0 {
			if len(delta) == 0 {
				return 0, nil, ErrInvalidDelta
			}
			sz |= uint(delta[0]) << s.shift
			delta = delta[1:]
		}
	}
	if sz == 0 {
		sz = maxCopySize
	}
	return sz, delta, nil
}

func invalidCopy(offset, sz, srcSz, targetSz uint) bool {
	if sz > targetSz {
		return true
	}
	if offset+sz < offset { // overflow
		return true
	}
	return offset+sz > srcSz
}

// applyDelta reconstructs a delta-encoded object's content: a base-size
// varint, a result-size varint, then a stream of copy-from-base and
// copy-from-delta-payload instructions (§4.4, git delta format).
func applyDelta(src, delta []byte) ([]byte, error) {
	if len(src) == 0 || len(delta) < minDeltaSize {
		return nil, ErrInvalidDelta
	}

	srcSz, delta := decodeLEB128(delta)
	if srcSz != uint(len(src)) {
		return nil, ErrInvalidDelta
	}

	targetSz, delta := decodeLEB128(delta)
	remaining := targetSz

	dst := bytes.NewBuffer(make([]byte, 0, targetSz))
	for {
		if len(delta) == 0 {
			return nil, ErrInvalidDelta
		}
		cmd := delta[0]
		delta = delta[1:]

		switch {
		case isCopyFromSrc(cmd):
			offset, rest, err := decodeOffset(cmd, delta)
			if err != nil {
				return nil, err
			}
			sz, rest, err := decodeSize(cmd, rest)
			if err != nil {
				return nil, err
			}
			delta = rest
			if invalidCopy(offset, sz, srcSz, targetSz) {
				return nil, ErrInvalidDelta
			}
			dst.Write(src[offset : offset+sz])
			remaining -= sz

		case isCopyFromDelta(cmd):
			sz := uint(cmd)
			if sz > targetSz || uint(len(delta)) < sz {
				return nil, ErrInvalidDelta
			}
			dst.Write(delta[:sz])
			delta = delta[sz:]
			remaining -= sz

		default:
			return nil, ErrDeltaCmd
		}

		if remaining == 0 {
			break
		}
	}
	return dst.Bytes(), nil
}
