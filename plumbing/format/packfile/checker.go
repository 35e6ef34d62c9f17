package packfile

import (
	"bytes"
	"fmt"

	"github.com/ketchgit/core/plumbing"
)

// DefaultObjectChecker applies the structural rules git's own fsck does:
// a tree's entries are well-formed and strictly ordered, a commit names a
// tree and at least one author/committer line, a tag names its target.
// Blobs carry no structural constraint. HashSize must match the repository
// the objects belong to, since tree entry ids are fixed-width and carry
// no self-describing length.
type DefaultObjectChecker struct {
	HashSize int
}

// Check implements ObjectChecker.
func (c DefaultObjectChecker) Check(id plumbing.ObjectID, t plumbing.ObjectType, content []byte) error {
	switch t {
	case plumbing.TreeObject:
		return checkTree(content, c.HashSize)
	case plumbing.CommitObject:
		return checkCommit(content)
	case plumbing.TagObject:
		return checkTag(content)
	case plumbing.BlobObject:
		return nil
	default:
		return fmt.Errorf("object %s: unexpected resolved type %s", id, t)
	}
}

// checkTree walks a tree's "<mode> <name>\0<id>" entries, requiring a
// valid octal mode, a non-empty name without '/' or NUL, and names in
// strictly ascending order (git rejects a tree with a duplicate or
// out-of-order entry).
func checkTree(content []byte, hashSize int) error {
	var prev []byte
	for len(content) > 0 {
		sp := bytes.IndexByte(content, ' ')
		if sp <= 0 {
			return fmt.Errorf("tree entry: missing mode separator")
		}
		mode := content[:sp]
		for _, c := range mode {
			if c < '0' || c > '7' {
				return fmt.Errorf("tree entry: invalid mode %q", mode)
			}
		}

		rest := content[sp+1:]
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return fmt.Errorf("tree entry: missing name terminator")
		}
		name := rest[:nul]
		if len(name) == 0 || bytes.IndexByte(name, '/') >= 0 {
			return fmt.Errorf("tree entry: invalid name %q", name)
		}
		if prev != nil && bytes.Compare(prev, name) >= 0 {
			return fmt.Errorf("tree entry: name %q out of order", name)
		}
		prev = append([]byte(nil), name...)

		idRest := rest[nul+1:]
		if len(idRest) < hashSize {
			return fmt.Errorf("tree entry %q: truncated id", name)
		}
		content = idRest[hashSize:]
	}
	return nil
}

func checkCommit(content []byte) error {
	if !bytes.HasPrefix(content, []byte("tree ")) {
		return fmt.Errorf("commit: missing tree header")
	}
	if !bytes.Contains(content, []byte("\nauthor ")) {
		return fmt.Errorf("commit: missing author header")
	}
	if !bytes.Contains(content, []byte("\ncommitter ")) {
		return fmt.Errorf("commit: missing committer header")
	}
	return nil
}

func checkTag(content []byte) error {
	if !bytes.HasPrefix(content, []byte("object ")) {
		return fmt.Errorf("tag: missing object header")
	}
	if !bytes.Contains(content, []byte("\ntype ")) {
		return fmt.Errorf("tag: missing type header")
	}
	if !bytes.Contains(content, []byte("\ntag ")) {
		return fmt.Errorf("tag: missing tag header")
	}
	return nil
}
