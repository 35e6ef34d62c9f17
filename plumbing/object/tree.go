package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/filemode"
)

// TreeEntry is one "<mode> <name>\0<id>" record inside a tree object.
type TreeEntry struct {
	Name string
	Mode filemode.FileMode
	ID   plumbing.ObjectID
}

// Tree is the decoded form of a Git tree object: an ordered list of named
// entries, each a blob, another tree, a gitlink (submodule/commit
// pointer), or a symlink.
type Tree struct {
	Entries []TreeEntry
}

// Decode parses r as a tree object's content (without the "tree N\0"
// object header). hashSize selects how many trailing bytes each entry's
// id occupies.
func (t *Tree) Decode(r io.Reader, hashSize int) error {
	br := bufio.NewReader(r)
	t.Entries = nil
	for {
		modeAndName, err := br.ReadString(0)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tree entry: %w", err)
		}
		modeAndName = modeAndName[:len(modeAndName)-1] // trim NUL

		sp := bytes.IndexByte([]byte(modeAndName), ' ')
		if sp <= 0 {
			return fmt.Errorf("tree entry: missing mode separator")
		}
		mode, err := filemode.New(modeAndName[:sp])
		if err != nil {
			return fmt.Errorf("tree entry: %w", err)
		}

		id := make([]byte, hashSize)
		if _, err := io.ReadFull(br, id); err != nil {
			return fmt.Errorf("tree entry %q: reading id: %w", modeAndName[sp+1:], err)
		}

		t.Entries = append(t.Entries, TreeEntry{
			Name: modeAndName[sp+1:],
			Mode: mode,
			ID:   plumbing.NewObjectID(id),
		})
	}
}

// Encode writes t in the canonical git tree-object wire order: entries
// sorted by name, with a tree-type entry's name compared as if it carried
// a trailing "/" (so "foo.txt" sorts before the tree "foo").
func (t *Tree) Encode(w io.Writer) error {
	entries := append([]TreeEntry(nil), t.Entries...)
	sort.Slice(entries, func(i, j int) bool {
		return treeEntryKey(entries[i]) < treeEntryKey(entries[j])
	})
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%o %s\x00", uint32(e.Mode), e.Name); err != nil {
			return err
		}
		if _, err := w.Write(e.ID.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func treeEntryKey(e TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

// Entry looks up an entry by exact name, returning ok=false if absent.
func (t *Tree) Entry(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}
