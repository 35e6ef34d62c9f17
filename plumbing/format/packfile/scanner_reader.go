package packfile

import (
	"bufio"
	"io"
)

// scannerReader wraps the pack's byte source with three concerns at once:
// it tracks the current read offset (so object headers can record where
// they start), it tees every byte read through to a hash writer (so the
// whole-pack checksum and the per-object CRC32 can be computed without a
// second pass), and it buffers small ReadByte calls so the variable-length
// header parsing isn't a syscall per byte.
//
// A single bufio.Reader sits under the whole scan: zlib only ever reads
// as many bytes as its decompressor actually consumes, so the offset
// tracked here lands exactly on the first byte of the next pack entry.
type scannerReader struct {
	src    io.Reader
	rbuf   *bufio.Reader
	wbuf   *bufio.Writer
	offset int64
	seeker io.Seeker
}

func newScannerReader(r io.Reader, h io.Writer) *scannerReader {
	sr := &scannerReader{
		rbuf: bufio.NewReader(nil),
		wbuf: bufio.NewWriterSize(nil, 64),
	}
	sr.Reset(r, h)
	return sr
}

func (r *scannerReader) Reset(src io.Reader, h io.Writer) {
	r.src = src
	r.rbuf.Reset(src)
	r.wbuf.Reset(h)
	r.offset = 0
	seeker, ok := src.(io.ReadSeeker)
	if ok {
		r.seeker = seeker
		r.offset, _ = seeker.Seek(0, io.SeekCurrent)
	} else {
		r.seeker = nil
	}
}

func (r *scannerReader) Read(p []byte) (int, error) {
	n, err := r.rbuf.Read(p)
	r.offset += int64(n)
	if _, werr := r.wbuf.Write(p[:n]); werr != nil {
		return n, werr
	}
	return n, err
}

func (r *scannerReader) ReadByte() (byte, error) {
	b, err := r.rbuf.ReadByte()
	if err != nil {
		return 0, err
	}
	r.offset++
	return b, r.wbuf.WriteByte(b)
}

func (r *scannerReader) Flush() error { return r.wbuf.Flush() }

// Seek supports only SeekCurrent with a zero offset (a position query)
// unless the underlying source is itself seekable.
func (r *scannerReader) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent && offset == 0 {
		return r.offset, nil
	}
	if r.seeker == nil {
		return -1, ErrSeekNotSupported
	}
	pos, err := r.seeker.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	r.offset = pos
	r.rbuf.Reset(r.src)
	return pos, nil
}
