// Package ioutil holds the handful of I/O helpers the ref store and pack
// scanner both need: closing a file without masking an earlier write error,
// and copying through a pooled buffer instead of allocating one per object.
package ioutil

import (
	"io"

	"github.com/ketchgit/core/internal/gitsync"
)

// CheckClose calls Close on c. If *err is nil, it is set to Close's error;
// otherwise Close's error is discarded so it never shadows an earlier
// write failure. Intended to be deferred right after a successful create.
func CheckClose(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

// Copy is io.CopyBuffer using a buffer borrowed from gitsync's pool, so the
// scanner's per-object inflate doesn't allocate a fresh buffer each time.
func Copy(dst io.Writer, src io.Reader) (n int64, err error) {
	buf := gitsync.GetByteSlice()
	n, err = io.CopyBuffer(dst, src, *buf)
	gitsync.PutByteSlice(buf)
	return
}
