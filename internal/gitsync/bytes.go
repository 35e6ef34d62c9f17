// Package gitsync pools the scratch buffers the pack scanner allocates on
// every object it inflates, so walking a multi-gigabyte pack doesn't churn
// the allocator once per entry.
package gitsync

import "sync"

var byteSlice = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 16*1024)
		return &b
	},
}

// GetByteSlice returns a *[]byte from the pool, sized 16KiB on first use.
// Callers that shrink or grow the slice they're given must still hand back
// the original pointer to PutByteSlice.
func GetByteSlice() *[]byte {
	return byteSlice.Get().(*[]byte)
}

// PutByteSlice returns buf to the pool.
func PutByteSlice(buf *[]byte) {
	if buf == nil {
		return
	}
	byteSlice.Put(buf)
}
