package gitsync

import (
	"bytes"
	"compress/zlib"
	"io"
	"sync"
)

// zlibInitBytes is a complete, empty zlib stream, used only to satisfy
// zlib.NewReader when seeding the pool; every real reader is immediately
// reset onto the caller's stream via GetZlibReader.
var zlibInitBytes = []byte{0x78, 0x9c, 0x01, 0x00, 0x00, 0xff, 0xff, 0x00, 0x00, 0x00, 0x01}

var zlibReaderPool = sync.Pool{
	New: func() any {
		r, _ := zlib.NewReader(bytes.NewReader(zlibInitBytes))
		return &ZLibReader{reader: r.(zlibReadCloser)}
	},
}

type zlibReadCloser interface {
	io.ReadCloser
	zlib.Resetter
}

// ZLibReader is a poolable zlib reader over one pack entry's compressed
// content. The scanner opens one per object header it walks.
type ZLibReader struct {
	dict   *[]byte
	reader zlibReadCloser
}

// Read reads inflated bytes from the entry's compressed stream.
func (r *ZLibReader) Read(p []byte) (int, error) {
	return r.reader.Read(p)
}

// Close closes the underlying zlib stream without returning it to the pool;
// callers hand the reader itself back via PutZlibReader.
func (r *ZLibReader) Close() error {
	return r.reader.Close()
}

// GetZlibReader returns a ZLibReader from the pool, reset onto src with a
// scratch dictionary buffer borrowed from the byte-slice pool.
//
// The returned reader must be released with PutZlibReader once the object's
// content has been fully inflated.
func GetZlibReader(src io.Reader) (*ZLibReader, error) {
	z := zlibReaderPool.Get().(*ZLibReader)
	z.dict = GetByteSlice()

	err := z.reader.Reset(src, *z.dict)
	return z, err
}

// PutZlibReader returns z, and its dictionary buffer, to their pools.
func PutZlibReader(z *ZLibReader) {
	PutByteSlice(z.dict)
	zlibReaderPool.Put(z)
}
