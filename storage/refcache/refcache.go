// Package refcache implements InMemoryRefDatabase: a read-through cache
// over a wrapped RefDatabase, keyed by a ternary search tree so exact and
// prefix lookups never touch the wrapped store on the hot path.
package refcache

import (
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/storer"
)

// InMemoryRefDatabase wraps a storer.RefDatabase, caching every resolved
// reference in a ternary search tree. Per the event-listener variant
// (the only one carried forward here — see DESIGN.md's open-question
// decision), the cache reloads itself in response to a filesystem
// watcher on the wrapped store's ref directory rather than requiring
// every writer to also call an onUpdated callback.
type InMemoryRefDatabase struct {
	wrapped storer.RefDatabase
	watcher *fsnotify.Watcher

	mu   sync.RWMutex
	tree *ternarySearchTree
}

// New wraps db, seeding the cache with a first full reload. watchPath, if
// non-empty, is passed to fsnotify so subsequent on-disk writes trigger
// an automatic reload; pass "" to disable watching (e.g. over a pure
// in-memory or RefTree-backed wrapped database, which has no filesystem
// of its own to watch).
func New(db storer.RefDatabase, watchPath string) (*InMemoryRefDatabase, error) {
	c := &InMemoryRefDatabase{wrapped: db, tree: newTernarySearchTree()}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	if watchPath != "" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, err
		}
		if err := w.Add(watchPath); err != nil {
			w.Close()
			return nil, err
		}
		c.watcher = w
		go c.watchLoop()
	}
	return c, nil
}

func (c *InMemoryRefDatabase) watchLoop() {
	for {
		select {
		case _, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			_ = c.Reload()
		case _, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the filesystem watcher, if one was started.
func (c *InMemoryRefDatabase) Close() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.Close()
}

// Reload atomically replaces the cached trie by re-reading every
// reference from the wrapped database. Readers never observe a
// partially-rebuilt tree: the swap is a single pointer write under the
// writer lock.
func (c *InMemoryRefDatabase) Reload() error {
	refs, err := c.wrapped.GetRefs("")
	if err != nil {
		return err
	}
	fresh := newTernarySearchTree()
	for name, ref := range refs {
		fresh.insert(string(name), ref)
	}

	c.mu.Lock()
	c.tree = fresh
	c.mu.Unlock()
	return nil
}

// ExactRef implements storer.RefDatabase against the cached trie.
func (c *InMemoryRefDatabase) ExactRef(name plumbing.ReferenceName) (*plumbing.Ref, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ref, ok := c.tree.get(string(name)); ok {
		return ref, nil
	}
	return nil, nil
}

// GetRefs implements storer.RefDatabase against the cached trie.
func (c *InMemoryRefDatabase) GetRefs(prefix string) (map[plumbing.ReferenceName]*plumbing.Ref, error) {
	out := map[plumbing.ReferenceName]*plumbing.Ref{}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		return out, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.tree.prefixWalk(prefix, out)
	return out, nil
}

// GetAdditionalRefs implements storer.RefDatabase by delegating, since
// additional refs are rarely hot-path lookups worth caching.
func (c *InMemoryRefDatabase) GetAdditionalRefs() ([]*plumbing.Ref, error) {
	return c.wrapped.GetAdditionalRefs()
}

// Peel implements storer.RefDatabase by delegating to the wrapped store.
func (c *InMemoryRefDatabase) Peel(ref *plumbing.Ref) (*plumbing.Ref, error) {
	return c.wrapped.Peel(ref)
}

// NewUpdate implements storer.RefDatabase: writes go straight through to
// the wrapped database; the cache catches up on the next fsnotify event
// or explicit Reload.
func (c *InMemoryRefDatabase) NewUpdate(name plumbing.ReferenceName, detach bool) (storer.Update, error) {
	return c.wrapped.NewUpdate(name, detach)
}

// NewBatchUpdate implements storer.RefDatabase, delegating to the
// wrapped database.
func (c *InMemoryRefDatabase) NewBatchUpdate() (storer.BatchUpdate, error) {
	return c.wrapped.NewBatchUpdate()
}

// NewRename implements storer.RefDatabase, delegating to the wrapped
// database.
func (c *InMemoryRefDatabase) NewRename(from, to plumbing.ReferenceName) (storer.Update, error) {
	return c.wrapped.NewRename(from, to)
}

// IsNameConflicting implements storer.RefDatabase against the cached trie.
func (c *InMemoryRefDatabase) IsNameConflicting(name plumbing.ReferenceName) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	all := map[plumbing.ReferenceName]*plumbing.Ref{}
	c.tree.prefixWalk("", all)
	return storer.IsNameConflicting(func(yield func(plumbing.ReferenceName) bool) {
		for n := range all {
			if !yield(n) {
				return
			}
		}
	}, name), nil
}

// PerformsAtomicTransactions implements storer.RefDatabase by delegating.
func (c *InMemoryRefDatabase) PerformsAtomicTransactions() bool {
	return c.wrapped.PerformsAtomicTransactions()
}
