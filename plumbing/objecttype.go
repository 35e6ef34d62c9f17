package plumbing

import "fmt"

// ObjectType identifies the four Git object kinds, plus the two pack-only
// delta encodings a pack entry's type byte can carry.
type ObjectType int8

const (
	InvalidObject ObjectType = 0
	CommitObject  ObjectType = 1
	TreeObject    ObjectType = 2
	BlobObject    ObjectType = 3
	TagObject     ObjectType = 4
	// 5 is reserved in the pack format.
	OFSDeltaObject ObjectType = 6
	REFDeltaObject ObjectType = 7
)

// IsDelta reports whether t is one of the two pack-only delta encodings.
func (t ObjectType) IsDelta() bool {
	return t == OFSDeltaObject || t == REFDeltaObject
}

// Valid reports whether t is a type a pack entry header may carry.
func (t ObjectType) Valid() bool {
	switch t {
	case CommitObject, TreeObject, BlobObject, TagObject, OFSDeltaObject, REFDeltaObject:
		return true
	default:
		return false
	}
}

// Bytes returns the loose-object header name git uses for t ("commit",
// "tree", "blob", "tag"). Delta types have no loose-object form.
func (t ObjectType) Bytes() []byte {
	return []byte(t.String())
}

func (t ObjectType) String() string {
	switch t {
	case CommitObject:
		return "commit"
	case TreeObject:
		return "tree"
	case BlobObject:
		return "blob"
	case TagObject:
		return "tag"
	case OFSDeltaObject:
		return "ofs-delta"
	case REFDeltaObject:
		return "ref-delta"
	default:
		return fmt.Sprintf("unknown(%d)", int8(t))
	}
}
