// Package interval keeps the committed booking windows of a single resource in
// an augmented AVL tree ordered by window start. Every node carries the latest
// end time of its subtree, so an overlap query visits O(log n + k) nodes.
package interval

import (
	"fmt"
	"sync"
	"time"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
)

// Entry is one window held in the index
type Entry struct {
	ID     string
	Window entities.TimeWindow
	Status string
}

type node struct {
	entry  Entry
	maxEnd time.Time
	height int
	left   *node
	right  *node
}

// Index is safe for concurrent use
type Index struct {
	mu   sync.RWMutex
	root *node
	byID map[string]Entry
}

// New creates an empty index
func New() *Index {
	return &Index{byID: make(map[string]Entry)}
}

// Len returns the number of entries
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}

// Get returns the entry with the given id
func (ix *Index) Get(id string) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.byID[id]
	return e, ok
}

// Insert adds an entry. Ids are unique within an index.
func (ix *Index) Insert(e Entry) error {
	if !e.Window.Valid() {
		return fmt.Errorf("interval: entry %s has an empty window %s", e.ID, e.Window)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, exists := ix.byID[e.ID]; exists {
		return fmt.Errorf("interval: entry %s already indexed", e.ID)
	}
	ix.root = insert(ix.root, e)
	ix.byID[e.ID] = e
	return nil
}

// Remove deletes the entry with the given id and reports whether it existed
func (ix *Index) Remove(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	e, ok := ix.byID[id]
	if !ok {
		return false
	}
	ix.root = remove(ix.root, e)
	delete(ix.byID, id)
	return true
}

// Update changes the status recorded for an entry. The key is unchanged, so
// the tree shape is untouched.
func (ix *Index) Update(id, status string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	e, ok := ix.byID[id]
	if !ok {
		return false
	}
	e.Status = status
	ix.byID[id] = e
	if n := find(ix.root, e); n != nil {
		n.entry.Status = status
	}
	return true
}

// QueryOverlap returns every entry whose window overlaps w, ordered by start
func (ix *Index) QueryOverlap(w entities.TimeWindow) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []Entry
	query(ix.root, w, &out)
	return out
}

// All returns every entry ordered by start
func (ix *Index) All() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Entry, 0, len(ix.byID))
	walk(ix.root, func(n *node) { out = append(out, n.entry) })
	return out
}

func less(a, b Entry) bool {
	if a.Window.From.Equal(b.Window.From) {
		return a.ID < b.ID
	}
	return a.Window.From.Before(b.Window.From)
}

func query(n *node, w entities.TimeWindow, out *[]Entry) {
	// nothing in this subtree ends after w starts
	if n == nil || !n.maxEnd.After(w.From) {
		return
	}
	query(n.left, w, out)
	if !n.entry.Window.From.Before(w.Until) {
		// this node and its right subtree start at or after w ends
		return
	}
	if n.entry.Window.Overlaps(w) {
		*out = append(*out, n.entry)
	}
	query(n.right, w, out)
}

func find(n *node, e Entry) *node {
	for n != nil {
		switch {
		case n.entry.ID == e.ID:
			return n
		case less(e, n.entry):
			n = n.left
		default:
			n = n.right
		}
	}
	return nil
}

func walk(n *node, fn func(*node)) {
	if n == nil {
		return
	}
	walk(n.left, fn)
	fn(n)
	walk(n.right, fn)
}

func height(n *node) int {
	if n == nil {
		return 0
	}
	return n.height
}

func fix(n *node) {
	n.height = 1 + max(height(n.left), height(n.right))
	n.maxEnd = n.entry.Window.Until
	if n.left != nil && n.left.maxEnd.After(n.maxEnd) {
		n.maxEnd = n.left.maxEnd
	}
	if n.right != nil && n.right.maxEnd.After(n.maxEnd) {
		n.maxEnd = n.right.maxEnd
	}
}

func rotateRight(n *node) *node {
	l := n.left
	n.left = l.right
	l.right = n
	fix(n)
	fix(l)
	return l
}

func rotateLeft(n *node) *node {
	r := n.right
	n.right = r.left
	r.left = n
	fix(n)
	fix(r)
	return r
}

func balance(n *node) *node {
	fix(n)
	switch bf := height(n.left) - height(n.right); {
	case bf > 1:
		if height(n.left.left) < height(n.left.right) {
			n.left = rotateLeft(n.left)
		}
		return rotateRight(n)
	case bf < -1:
		if height(n.right.right) < height(n.right.left) {
			n.right = rotateRight(n.right)
		}
		return rotateLeft(n)
	}
	return n
}

func insert(n *node, e Entry) *node {
	if n == nil {
		nn := &node{entry: e}
		fix(nn)
		return nn
	}
	if less(e, n.entry) {
		n.left = insert(n.left, e)
	} else {
		n.right = insert(n.right, e)
	}
	return balance(n)
}

func remove(n *node, e Entry) *node {
	if n == nil {
		return nil
	}
	switch {
	case n.entry.ID == e.ID:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		succ := n.right
		for succ.left != nil {
			succ = succ.left
		}
		n.entry = succ.entry
		n.right = remove(n.right, succ.entry)
	case less(e, n.entry):
		n.left = remove(n.left, e)
	default:
		n.right = remove(n.right, e)
	}
	return balance(n)
}
