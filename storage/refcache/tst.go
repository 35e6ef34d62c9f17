package refcache

import "github.com/ketchgit/core/plumbing"

// ternaryNode is one node of a ternary search tree keyed by reference
// name. Ternary search trees give prefix enumeration (GetRefs) a simple
// recursive walk while keeping exact lookup close to a binary search
// tree's cost, which is the shape §4.7's getRefs(prefix) needs.
type ternaryNode struct {
	ch                 byte
	low, mid, high     *ternaryNode
	terminal           bool
	ref                *plumbing.Ref
}

// ternarySearchTree is an insert/lookup/prefix-walk index over reference
// names. It is not safe for concurrent use by itself; InMemoryRefDatabase
// guards it with a reader-writer lock.
type ternarySearchTree struct {
	root *ternaryNode
	size int
}

func newTernarySearchTree() *ternarySearchTree { return &ternarySearchTree{} }

func (t *ternarySearchTree) insert(key string, ref *plumbing.Ref) {
	t.root = insertNode(t.root, key, ref, &t.size)
}

func insertNode(n *ternaryNode, key string, ref *plumbing.Ref, size *int) *ternaryNode {
	c := key[0]
	if n == nil {
		n = &ternaryNode{ch: c}
	}
	switch {
	case c < n.ch:
		n.low = insertNode(n.low, key, ref, size)
	case c > n.ch:
		n.high = insertNode(n.high, key, ref, size)
	case len(key) > 1:
		n.mid = insertNode(n.mid, key[1:], ref, size)
	default:
		if !n.terminal {
			*size++
		}
		n.terminal = true
		n.ref = ref
	}
	return n
}

func (t *ternarySearchTree) get(key string) (*plumbing.Ref, bool) {
	n := t.root
	i := 0
	for n != nil && i < len(key) {
		c := key[i]
		switch {
		case c < n.ch:
			n = n.low
		case c > n.ch:
			n = n.high
		default:
			i++
			if i == len(key) {
				if n.terminal {
					return n.ref, true
				}
				return nil, false
			}
			n = n.mid
		}
	}
	return nil, false
}

func (t *ternarySearchTree) delete(key string) {
	if _, ok := t.get(key); ok {
		deleteNode(t.root, key, 0, &t.size)
	}
}

func deleteNode(n *ternaryNode, key string, i int, size *int) {
	if n == nil {
		return
	}
	c := key[i]
	switch {
	case c < n.ch:
		deleteNode(n.low, key, i, size)
	case c > n.ch:
		deleteNode(n.high, key, i, size)
	case i+1 == len(key):
		if n.terminal {
			n.terminal = false
			n.ref = nil
			*size--
		}
	default:
		deleteNode(n.mid, key, i+1, size)
	}
}

// prefixWalk collects every terminal node whose key begins with prefix.
// An empty prefix collects the entire tree.
func (t *ternarySearchTree) prefixWalk(prefix string, out map[plumbing.ReferenceName]*plumbing.Ref) {
	if prefix == "" {
		collect(t.root, out)
		return
	}
	n := nodeAt(t.root, prefix, 0)
	if n == nil {
		return
	}
	if n.terminal {
		out[n.ref.Name()] = n.ref
	}
	collect(n.mid, out)
}

// nodeAt returns the node representing the last character of key,
// reached via mid-links, without descending past it.
func nodeAt(n *ternaryNode, key string, i int) *ternaryNode {
	if n == nil {
		return nil
	}
	c := key[i]
	switch {
	case c < n.ch:
		return nodeAt(n.low, key, i)
	case c > n.ch:
		return nodeAt(n.high, key, i)
	case i+1 < len(key):
		return nodeAt(n.mid, key, i+1)
	default:
		return n
	}
}

// collect adds every terminal node reachable from n to out.
func collect(n *ternaryNode, out map[plumbing.ReferenceName]*plumbing.Ref) {
	if n == nil {
		return
	}
	collect(n.low, out)
	if n.terminal {
		out[n.ref.Name()] = n.ref
	}
	collect(n.mid, out)
	collect(n.high, out)
}
