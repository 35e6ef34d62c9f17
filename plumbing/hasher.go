package plumbing

import (
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/pjbgf/sha1cd"
)

// Hasher computes an ObjectID the way Git addresses a loose object: the
// hash of "<type> <size>\0" followed by the object's uncompressed
// content. It is reusable across objects via Reset.
type Hasher struct {
	hashSize int
	h        hash.Hash
}

// NewHasher returns a Hasher producing ids of hashSize bytes (SHA1Size or
// SHA256Size), primed for an object of type t and the given content size.
func NewHasher(hashSize int, t ObjectType, size int64) Hasher {
	h := Hasher{hashSize: hashSize}
	h.Reset(t, size)
	return h
}

// Reset reinitializes the hasher for a new object, writing its header.
func (h *Hasher) Reset(t ObjectType, size int64) {
	if h.hashSize == SHA256Size {
		h.h = sha256.New()
	} else {
		h.h = sha1cd.New()
	}
	fmt.Fprintf(h.h, "%s %d\x00", t, size)
}

// Write implements io.Writer, feeding object content into the hash.
func (h *Hasher) Write(p []byte) (int, error) { return h.h.Write(p) }

// Sum returns the resulting ObjectID.
func (h *Hasher) Sum() ObjectID {
	return NewObjectID(h.h.Sum(nil)[:h.hashSize])
}
