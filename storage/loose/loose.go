// Package loose implements the bootstrap reference store: a plain,
// file-per-ref backing database good enough to anchor the transactional
// namespace (refs/txn/*) that a RefTree cannot itself hold, since storing
// refs/txn/* inside the tree it anchors would be a cycle.
package loose

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/ketchgit/core/internal/ioutil"
	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/storer"
)

// Database is a go-billy-backed RefDatabase storing one file per
// reference under its name, git's original loose-ref layout. It is
// intentionally simple: no packed-refs compaction, because the only
// references that live here are the small, frequently-rewritten
// transactional log anchors.
type Database struct {
	fs billy.Filesystem
	mu sync.RWMutex
}

// NewDatabase opens (without creating) a loose ref store rooted at fs.
func NewDatabase(fs billy.Filesystem) *Database {
	return &Database{fs: fs}
}

func refPath(name plumbing.ReferenceName) string { return string(name) }

// ExactRef implements storer.RefDatabase.
func (d *Database) ExactRef(name plumbing.ReferenceName) (*plumbing.Ref, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.readRef(name)
}

func (d *Database) readRef(name plumbing.ReferenceName) (*plumbing.Ref, error) {
	f, err := d.fs.Open(refPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	line := strings.TrimSpace(string(content))

	if strings.HasPrefix(line, "ref: ") {
		targetName := plumbing.ReferenceName(strings.TrimPrefix(line, "ref: "))
		target, err := d.readRef(targetName)
		if err != nil {
			return nil, err
		}
		if target == nil {
			target = plumbing.NewObjectIDRef(targetName, plumbing.NewStorage, plumbing.ZeroHash)
		}
		return plumbing.NewSymbolicRef(name, plumbing.LooseStorage, target), nil
	}

	id, ok := plumbing.FromHex(line)
	if !ok {
		return nil, fmt.Errorf("loose ref %s: malformed content %q", name, line)
	}
	return plumbing.NewObjectIDRef(name, plumbing.LooseStorage, id), nil
}

// GetRefs implements storer.RefDatabase.
func (d *Database) GetRefs(prefix string) (map[plumbing.ReferenceName]*plumbing.Ref, error) {
	out := map[plumbing.ReferenceName]*plumbing.Ref{}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		return out, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var names []string
	if err := d.walk(prefix, &names); err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	sort.Strings(names)
	for _, n := range names {
		ref, err := d.readRef(plumbing.ReferenceName(n))
		if err != nil {
			return nil, err
		}
		if ref != nil {
			out[ref.Name()] = ref
		}
	}
	return out, nil
}

func (d *Database) walk(dir string, out *[]string) error {
	root := dir
	if root == "" {
		root = "."
	} else {
		root = strings.TrimSuffix(root, "/")
	}
	entries, err := d.fs.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		full := dir + e.Name()
		if e.IsDir() {
			if err := d.walk(full+"/", out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, full)
	}
	return nil
}

// GetAdditionalRefs implements storer.RefDatabase. The bootstrap store
// carries none; additional refs (MERGE_HEAD and similar) are a
// working-tree concern outside this core.
func (d *Database) GetAdditionalRefs() ([]*plumbing.Ref, error) { return nil, nil }

// Peel implements storer.RefDatabase by returning ref unchanged: the
// loose store has no object access, so tag chains are not walked.
func (d *Database) Peel(ref *plumbing.Ref) (*plumbing.Ref, error) {
	return ref, nil
}

// IsNameConflicting implements storer.RefDatabase.
func (d *Database) IsNameConflicting(name plumbing.ReferenceName) (bool, error) {
	refs, err := d.GetRefs("")
	if err != nil {
		return false, err
	}
	return storer.IsNameConflicting(func(yield func(plumbing.ReferenceName) bool) {
		for n := range refs {
			if !yield(n) {
				return
			}
		}
	}, name), nil
}

// PerformsAtomicTransactions implements storer.RefDatabase: a loose store
// writes one file per command, with no cross-file atomicity.
func (d *Database) PerformsAtomicTransactions() bool { return false }

// NewUpdate implements storer.RefDatabase.
func (d *Database) NewUpdate(name plumbing.ReferenceName, detach bool) (storer.Update, error) {
	if !plumbing.IsValidReferenceName(name) {
		return nil, fmt.Errorf("invalid reference name %q", name)
	}
	return &update{db: d, name: name}, nil
}

// NewRename implements storer.RefDatabase: a plain create-then-delete,
// since the bootstrap layer makes no atomicity promise.
func (d *Database) NewRename(from, to plumbing.ReferenceName) (storer.Update, error) {
	return &rename{db: d, from: from, to: to}, nil
}

type update struct {
	db       *Database
	name     plumbing.ReferenceName
	newID    plumbing.ObjectID
	newTgt   plumbing.ReferenceName
	symbolic bool
}

func (u *update) SetNew(id plumbing.ObjectID) error { u.newID = id; return nil }
func (u *update) SetNewTarget(target plumbing.ReferenceName) error {
	u.symbolic = true
	u.newTgt = target
	return nil
}

func (u *update) Commit() error {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()

	var content string
	if u.symbolic {
		content = fmt.Sprintf("ref: %s\n", u.newTgt)
	} else {
		content = u.newID.String() + "\n"
	}
	return writeFile(u.db.fs, refPath(u.name), content)
}

func (u *update) Abort() error { return nil }

type rename struct {
	db       *Database
	from, to plumbing.ReferenceName
}

func (r *rename) SetNew(plumbing.ObjectID) error                 { return nil }
func (r *rename) SetNewTarget(plumbing.ReferenceName) error      { return nil }
func (r *rename) Commit() error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	ref, err := r.db.readRef(r.from)
	if err != nil {
		return err
	}
	if ref == nil {
		return fmt.Errorf("rename: %s does not exist", r.from)
	}
	var content string
	if ref.IsSymbolic() {
		content = fmt.Sprintf("ref: %s\n", ref.Target().Name())
	} else {
		content = ref.ObjectID().String() + "\n"
	}
	if err := writeFile(r.db.fs, refPath(r.to), content); err != nil {
		return err
	}
	return r.db.fs.Remove(refPath(r.from))
}
func (r *rename) Abort() error { return nil }

func writeFile(fs billy.Filesystem, path, content string) (err error) {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer ioutil.CheckClose(f, &err)

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(content); err != nil {
		return err
	}
	return w.Flush()
}

// NewBatchUpdate implements storer.RefDatabase with a simple sequential
// apply: each command is attempted in order and a failed command does not
// stop the ones after it, since this layer makes no atomicity promise
// (PerformsAtomicTransactions returns false). OldID and OldTarget are not
// checked.
func (d *Database) NewBatchUpdate() (storer.BatchUpdate, error) {
	return &batchUpdate{db: d}, nil
}

type batchUpdate struct {
	db   *Database
	cmds []storer.Command
}

func (b *batchUpdate) AddCommand(cmd storer.Command) { b.cmds = append(b.cmds, cmd) }

func (b *batchUpdate) Execute() ([]storer.CommandResult, error) {
	results := make([]storer.CommandResult, len(b.cmds))
	for i, cmd := range b.cmds {
		u, err := b.db.NewUpdate(cmd.Name, false)
		if err != nil {
			results[i] = storer.CommandResult{Command: cmd, Status: storer.RejectedOtherReason, Message: err.Error()}
			continue
		}
		if cmd.Symbolic {
			_ = u.SetNewTarget(cmd.NewTarget)
		} else {
			_ = u.SetNew(cmd.NewID)
		}
		if err := u.Commit(); err != nil {
			results[i] = storer.CommandResult{Command: cmd, Status: storer.LockFailure, Message: err.Error()}
			continue
		}
		results[i] = storer.CommandResult{Command: cmd, Status: storer.OK}
	}
	return results, nil
}
