// Package reftree implements the RefTree reference database: the entire
// reference namespace encoded as one Git tree object, committed under a
// transactional bootstrap reference so that reading every ref in the
// repository reduces to reading one commit and walking its tree.
package reftree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/filemode"
	"github.com/ketchgit/core/plumbing/object"
	"github.com/ketchgit/core/plumbing/storer"
)

// ObjectStore is the minimal object-database capability RefTree needs:
// reading and writing the trees, blobs, and commits that make up its
// on-disk representation. A real implementation backs this by the pack
// storage and a loose-object writer; tests may use an in-memory stub.
type ObjectStore interface {
	GetTree(id plumbing.ObjectID) (*object.Tree, error)
	PutTree(t *object.Tree) (plumbing.ObjectID, error)
	GetBlob(id plumbing.ObjectID) ([]byte, error)
	PutBlob(content []byte) (plumbing.ObjectID, error)
	GetCommit(id plumbing.ObjectID) (*object.Commit, error)
	PutCommit(c *object.Commit) (plumbing.ObjectID, error)
}

// rootDotDot is the synthetic path prefix under which references outside
// refs/ (chiefly HEAD) are stored, so the whole namespace fits under one
// tree rooted at "refs/".
const rootDotDot = ".."

// entry is one leaf the tree materializes: either a gitlink (plain ref),
// a symlink (symbolic ref, blob content is the target name), or a
// peeled-tag shadow entry at "<path> ^".
type entry struct {
	mode filemode.FileMode
	id   plumbing.ObjectID
	// target is set only for symlink entries, holding the referenced
	// name so a freshly built tree can re-derive the blob without a
	// round trip through the object store.
	target string
}

// RefTree is the in-memory form of the reference namespace: a flat map
// from tree-relative path to entry, lazily materialized into (and read
// back from) nested Git tree objects.
type RefTree struct {
	store   ObjectStore
	entries map[string]entry
}

// New returns an empty RefTree, with nothing committed yet.
func New(store ObjectStore) *RefTree {
	return &RefTree{store: store, entries: map[string]entry{}}
}

// Load reads an existing RefTree snapshot from rootID, replacing any
// in-memory state.
func Load(store ObjectStore, rootID plumbing.ObjectID) (*RefTree, error) {
	rt := New(store)
	if rootID.IsZero() {
		return rt, nil
	}
	if err := rt.walk(rootID, ""); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *RefTree) walk(id plumbing.ObjectID, prefix string) error {
	t, err := rt.store.GetTree(id)
	if err != nil {
		return fmt.Errorf("reftree: reading tree %s: %w", id, err)
	}
	for _, e := range t.Entries {
		path := e.Name
		if prefix != "" {
			path = prefix + "/" + e.Name
		}
		switch e.Mode {
		case filemode.Dir:
			if err := rt.walk(e.ID, path); err != nil {
				return err
			}
		case filemode.Submodule:
			rt.entries[path] = entry{mode: e.Mode, id: e.ID}
		case filemode.Symlink:
			content, err := rt.store.GetBlob(e.ID)
			if err != nil {
				return fmt.Errorf("reftree: reading symlink blob at %s: %w", path, err)
			}
			rt.entries[path] = entry{mode: e.Mode, id: e.ID, target: string(content)}
		default:
			return fmt.Errorf("reftree: unexpected entry mode %s at %s", e.Mode, path)
		}
	}
	return nil
}

// pathFor maps a reference name onto its tree-relative path, applying
// the root-dotdot convention for names outside refs/.
func pathFor(name plumbing.ReferenceName) string {
	const prefix = "refs/"
	s := string(name)
	if strings.HasPrefix(s, prefix) {
		return strings.TrimPrefix(s, prefix)
	}
	return rootDotDot + s
}

// nameFor is the inverse of pathFor.
func nameFor(path string) plumbing.ReferenceName {
	if strings.HasPrefix(path, rootDotDot) {
		return plumbing.ReferenceName(strings.TrimPrefix(path, rootDotDot))
	}
	return plumbing.ReferenceName("refs/" + path)
}

// Ref reads the reference stored at name, or nil if absent. A direct
// reference whose peeled shadow entry ("<path> ^") is present is
// returned with its peeled value already cached.
func (rt *RefTree) Ref(name plumbing.ReferenceName) *plumbing.Ref {
	path := pathFor(name)
	e, ok := rt.entries[path]
	if !ok {
		return nil
	}
	if e.mode == filemode.Symlink {
		target := plumbing.NewObjectIDRef(plumbing.ReferenceName(e.target), plumbing.LooseStorage, plumbing.ZeroHash)
		return plumbing.NewSymbolicRef(name, plumbing.LooseStorage, target)
	}
	if peeled, ok := rt.entries[path+plumbing.PeelSuffix]; ok {
		return plumbing.NewPeeledObjectIDRef(name, plumbing.LooseStorage, e.id, peeled.id)
	}
	return plumbing.NewObjectIDRef(name, plumbing.LooseStorage, e.id)
}

// Refs returns every reference whose path begins with the given
// reference-name prefix, following §4.5's empty-or-trailing-slash rule.
func (rt *RefTree) Refs(prefix string) map[plumbing.ReferenceName]*plumbing.Ref {
	out := map[plumbing.ReferenceName]*plumbing.Ref{}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		return out
	}
	for path := range rt.entries {
		if strings.HasSuffix(path, plumbing.PeelSuffix) {
			continue
		}
		name := nameFor(path)
		if !strings.HasPrefix(string(name), prefix) {
			continue
		}
		if ref := rt.Ref(name); ref != nil {
			out[name] = ref
		}
	}
	return out
}

// set installs or overwrites the entry at name with a direct object id,
// plus an optional peeled shadow entry.
func (rt *RefTree) set(name plumbing.ReferenceName, id plumbing.ObjectID, peeled *plumbing.ObjectID) {
	path := pathFor(name)
	rt.entries[path] = entry{mode: filemode.Submodule, id: id}
	delete(rt.entries, path+plumbing.PeelSuffix)
	if peeled != nil {
		rt.entries[path+plumbing.PeelSuffix] = entry{mode: filemode.Submodule, id: *peeled}
	}
}

// setSymbolic installs or overwrites a symbolic entry at name.
func (rt *RefTree) setSymbolic(name, target plumbing.ReferenceName) error {
	blob, err := rt.store.PutBlob([]byte(target))
	if err != nil {
		return err
	}
	path := pathFor(name)
	rt.entries[path] = entry{mode: filemode.Symlink, id: blob, target: string(target)}
	delete(rt.entries, path+plumbing.PeelSuffix)
	return nil
}

// remove deletes the entry (and any peeled shadow) at name.
func (rt *RefTree) remove(name plumbing.ReferenceName) {
	path := pathFor(name)
	delete(rt.entries, path)
	delete(rt.entries, path+plumbing.PeelSuffix)
}

// IsNameConflicting reports whether name cannot coexist with an existing
// entry in rt under the shared prefix-boundary rule (§4.5): name is a
// strict "/"-boundary prefix of an existing reference, or vice versa.
func (rt *RefTree) IsNameConflicting(name plumbing.ReferenceName) bool {
	return storer.IsNameConflicting(func(yield func(plumbing.ReferenceName) bool) {
		for path := range rt.entries {
			if strings.HasSuffix(path, plumbing.PeelSuffix) {
				continue
			}
			if !yield(nameFor(path)) {
				return
			}
		}
	}, name)
}

// clone returns a deep-enough copy for speculative application: the map
// is copied, entries are value types so no further copying is needed.
func (rt *RefTree) clone() *RefTree {
	cp := &RefTree{store: rt.store, entries: make(map[string]entry, len(rt.entries))}
	for k, v := range rt.entries {
		cp.entries[k] = v
	}
	return cp
}

// Clone returns a copy of rt safe for speculative mutation, the way a
// leader applies a proposal's commands to its cached tree before a round
// has actually persisted them.
func (rt *RefTree) Clone() *RefTree { return rt.clone() }

// Apply mutates rt in place per cmd's semantics (the same rule batch
// updates use): a zero NewID or empty NewTarget removes the reference,
// otherwise it is set as a gitlink or symlink entry.
func (rt *RefTree) Apply(cmd storer.Command) error {
	return applyCommand(rt, cmd)
}

// CheckConflict reports whether cmd's old-value expectation still holds
// against rt's current state, with the same rule the batch reject scan
// uses, for a leader validating a proposal before speculatively applying
// it to its cached tree.
func (rt *RefTree) CheckConflict(cmd storer.Command) error {
	if !plumbing.IsValidReferenceName(cmd.Name) {
		return fmt.Errorf("invalid reference name %q", cmd.Name)
	}
	current := rt.Ref(cmd.Name)
	if cmd.OldID.IsZero() && cmd.OldTarget == "" {
		return nil
	}
	if current == nil {
		return fmt.Errorf("reference %s does not exist", cmd.Name)
	}
	if cmd.Symbolic || cmd.OldTarget != "" {
		if !current.IsSymbolic() || current.Target().Name() != cmd.OldTarget {
			return fmt.Errorf("reference %s changed underneath the caller", cmd.Name)
		}
		return nil
	}
	if current.IsSymbolic() || !current.ObjectID().Equal(cmd.OldID) {
		return fmt.Errorf("reference %s changed underneath the caller", cmd.Name)
	}
	return nil
}

// Build writes the flat entry map out as nested Git tree objects and
// returns the root tree's id.
func (rt *RefTree) Build() (plumbing.ObjectID, error) {
	return rt.buildDir("")
}

func (rt *RefTree) buildDir(prefix string) (plumbing.ObjectID, error) {
	seen := map[string]bool{} // immediate child directory names under prefix
	t := &object.Tree{}

	for path, e := range rt.entries {
		rel := path
		if prefix != "" {
			if !strings.HasPrefix(path, prefix+"/") {
				continue
			}
			rel = strings.TrimPrefix(path, prefix+"/")
		}
		if strings.Contains(rel, "/") {
			seen[strings.SplitN(rel, "/", 2)[0]] = true
			continue
		}
		t.Entries = append(t.Entries, object.TreeEntry{Name: rel, Mode: e.mode, ID: e.id})
	}

	var names []string
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		childPrefix := name
		if prefix != "" {
			childPrefix = prefix + "/" + name
		}
		id, err := rt.buildDir(childPrefix)
		if err != nil {
			return plumbing.ObjectID{}, err
		}
		t.Entries = append(t.Entries, object.TreeEntry{Name: name, Mode: filemode.Dir, ID: id})
	}

	return rt.store.PutTree(t)
}
