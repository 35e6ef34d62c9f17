package plumbing

import (
	"bytes"
	"encoding/hex"
)

// Hash sizes recognized by the object id. The core parameterizes hash
// length rather than hard-coding SHA-1: every ObjectID carries its own
// size so that pack storage, indices, and the reference tree can work
// against either format without a compile-time switch.
const (
	SHA1Size      = 20
	SHA256Size    = 32
	SHA1HexSize   = SHA1Size * 2
	SHA256HexSize = SHA256Size * 2
)

// ObjectID is a fixed-width content address. The zero value is the
// distinguished "absent" id used throughout the reference layer to mean
// "no old value expected" or "delete this reference".
type ObjectID struct {
	size int
	b    [SHA256Size]byte
}

// ZeroHash is the distinguished absent ObjectID, sized as SHA-1. Most
// comparisons against it only care about IsZero, which is size-agnostic.
var ZeroHash ObjectID

// NewObjectID builds an ObjectID from raw address bytes. The size of b
// determines the hash format; any other length returns a zero ObjectID.
func NewObjectID(b []byte) ObjectID {
	var id ObjectID
	switch len(b) {
	case SHA1Size, SHA256Size:
		id.size = len(b)
		copy(id.b[:], b)
	}
	return id
}

// FromHex parses a hexadecimal object id. The format is inferred from the
// string length; malformed input returns a zero ObjectID and ok=false.
func FromHex(s string) (id ObjectID, ok bool) {
	switch len(s) {
	case SHA1HexSize, SHA256HexSize:
	default:
		return ObjectID{}, false
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ObjectID{}, false
	}
	return NewObjectID(raw), true
}

// Size returns the number of address bytes (20 for SHA-1, 32 for SHA-256).
// A zero-value ObjectID not yet written to reports the SHA-1 size, as that
// is the default hash format.
func (id ObjectID) Size() int {
	if id.size == 0 {
		return SHA1Size
	}
	return id.size
}

// Bytes returns the raw address bytes. The returned slice aliases the
// ObjectID's internal storage and must not be mutated by the caller.
func (id ObjectID) Bytes() []byte {
	return id.b[:id.Size()]
}

// String returns the lowercase hexadecimal representation.
func (id ObjectID) String() string {
	return hex.EncodeToString(id.Bytes())
}

// IsZero reports whether this is the distinguished absent value: every
// address byte is zero.
func (id ObjectID) IsZero() bool {
	for _, c := range id.Bytes() {
		if c != 0 {
			return false
		}
	}
	return true
}

// Compare orders id against a raw byte buffer, lexicographically.
func (id ObjectID) Compare(b []byte) int {
	return bytes.Compare(id.Bytes(), b)
}

// Equal reports whether two ids hold the same address bytes.
func (id ObjectID) Equal(other ObjectID) bool {
	return id.Compare(other.Bytes()) == 0
}

// FirstByte returns the leading byte used by fan-out tables to bucket
// ids into 256 partitions.
func (id ObjectID) FirstByte() byte {
	return id.Bytes()[0]
}

// HasPrefixAt reports whether id's address bytes match prefix exactly,
// comparing only len(prefix) bytes. Used by MultiPackIndex.resolve and
// abbreviated-id matching.
func (id ObjectID) HasPrefixAt(prefix []byte) bool {
	return bytes.HasPrefix(id.Bytes(), prefix)
}

// CompareIDs orders a and b the way a pack index orders its id table:
// lexicographic over the address bytes.
func CompareIDs(a, b ObjectID) int {
	return bytes.Compare(a.Bytes(), b.Bytes())
}

// IDSlice attaches sort.Interface to a slice of ObjectIDs, ascending.
type IDSlice []ObjectID

func (s IDSlice) Len() int           { return len(s) }
func (s IDSlice) Less(i, j int) bool { return CompareIDs(s[i], s[j]) < 0 }
func (s IDSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
