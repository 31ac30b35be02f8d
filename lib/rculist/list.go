package rculist

import (
	"iter"
	"sync"
	"sync/atomic"
)

// Node is an element of a List
type Node[T any] struct {
	next    atomic.Pointer[Node[T]] // read by readers
	prev    *Node[T]                // writers only
	list    *List[T]                // writers only, nil once removed
	removed atomic.Bool
	value   T
}

// Value returns the value stored in the node
func (n *Node[T]) Value() T {
	return n.value
}

// Next returns the successor of the node or nil at the end of the list.
// Must be called inside a read-side critical section.
func (n *Node[T]) Next() *Node[T] {
	return n.next.Load()
}

// IsRemoved reports whether the node was removed (or replaced)
func (n *Node[T]) IsRemoved() bool {
	return n.removed.Load()
}

// List is an RCU protected doubly linked list.
// The zero value is not usable, use New.
type List[T any] struct {
	head atomic.Pointer[Node[T]]
	len  atomic.Int64

	mu   sync.Mutex
	tail *Node[T] // writers only
}

// New creates an empty list
func New[T any]() *List[T] {
	return &List[T]{}
}

// --------------------------------------------------------------------------
// Read side
// --------------------------------------------------------------------------

// Front returns the first node or nil if the list is empty.
// Must be called inside a read-side critical section.
func (l *List[T]) Front() *Node[T] {
	return l.head.Load()
}

// All iterates over the nodes from front to back.
// Must be called inside a read-side critical section.
func (l *List[T]) All() iter.Seq[*Node[T]] {
	return func(yield func(*Node[T]) bool) {
		for n := l.head.Load(); n != nil; n = n.next.Load() {
			if !yield(n) {
				return
			}
		}
	}
}

// Values iterates over the values from front to back.
// Must be called inside a read-side critical section.
func (l *List[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for n := l.head.Load(); n != nil; n = n.next.Load() {
			if !yield(n.value) {
				return
			}
		}
	}
}

// Len returns the number of nodes in the list
func (l *List[T]) Len() int {
	return int(l.len.Load())
}

// --------------------------------------------------------------------------
// Write side
// --------------------------------------------------------------------------

// PushFront inserts a new node with value v at the front and returns it.
//
// Thread-safety: Writers are serialized internally.
func (l *List[T]) PushFront(v T) *Node[T] {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.insert(&Node[T]{value: v}, nil)
}

// PushBack inserts a new node with value v at the back and returns it.
//
// Thread-safety: Writers are serialized internally.
func (l *List[T]) PushBack(v T) *Node[T] {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.insert(&Node[T]{value: v}, l.tail)
}

// InsertAfter inserts a new node with value v right after mark and returns it.
// If mark is not an element of l, the list is not modified and nil is returned.
//
// Thread-safety: Writers are serialized internally.
func (l *List[T]) InsertAfter(mark *Node[T], v T) *Node[T] {
	l.mu.Lock()
	defer l.mu.Unlock()

	if mark == nil || mark.list != l {
		return nil
	}
	return l.insert(&Node[T]{value: v}, mark)
}

// InsertBefore inserts a new node with value v right before mark and returns it.
// If mark is not an element of l, the list is not modified and nil is returned.
//
// Thread-safety: Writers are serialized internally.
func (l *List[T]) InsertBefore(mark *Node[T], v T) *Node[T] {
	l.mu.Lock()
	defer l.mu.Unlock()

	if mark == nil || mark.list != l {
		return nil
	}
	return l.insert(&Node[T]{value: v}, mark.prev)
}

// insert links n after pred (pred == nil inserts at the front). Must hold mu.
func (l *List[T]) insert(n, pred *Node[T]) *Node[T] {
	var succ *Node[T]
	if pred == nil {
		succ = l.head.Load()
	} else {
		succ = pred.next.Load()
	}

	// initialise n completely before it becomes reachable
	n.list = l
	n.prev = pred
	n.next.Store(succ)

	// publish
	if pred == nil {
		l.head.Store(n)
	} else {
		pred.next.Store(n)
	}

	if succ == nil {
		l.tail = n
	} else {
		succ.prev = n
	}

	l.len.Add(1)
	return n
}

// Remove unlinks n from the list. Readers that already reached n can continue the traversal
// through it. Returns false if n is not an element of l (e.g. already removed).
//
// Thread-safety: Writers are serialized internally.
func (l *List[T]) Remove(n *Node[T]) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n == nil || n.list != l {
		return false
	}

	pred, succ := n.prev, n.next.Load()

	// bypass n with a single store, n.next stays intact
	if pred == nil {
		l.head.Store(succ)
	} else {
		pred.next.Store(succ)
	}

	if succ == nil {
		l.tail = pred
	} else {
		succ.prev = pred
	}

	n.list = nil
	n.prev = nil
	n.removed.Store(true)
	l.len.Add(-1)
	return true
}

// Replace swaps old for a new node with value v in a single store and returns the new node.
// Readers see either old or the new node, never both or neither. Returns (nil, false) if
// old is not an element of l.
//
// Thread-safety: Writers are serialized internally.
func (l *List[T]) Replace(old *Node[T], v T) (*Node[T], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if old == nil || old.list != l {
		return nil, false
	}

	pred, succ := old.prev, old.next.Load()

	n := &Node[T]{value: v, list: l, prev: pred}
	n.next.Store(succ)

	if pred == nil {
		l.head.Store(n)
	} else {
		pred.next.Store(n)
	}

	if succ == nil {
		l.tail = n
	} else {
		succ.prev = n
	}

	old.list = nil
	old.prev = nil
	old.removed.Store(true)
	return n, true
}
