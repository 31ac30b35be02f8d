package lfht

import (
	"math/bits"
	"sync/atomic"
)

// link is the immutable successor pointer of a node. A marked link belongs to a removed node,
// its next pointer never changes again.
type link[K comparable, V any] struct {
	next   *Node[K, V]
	marked bool
}

// Node is an entry of the table. Bucket sentinels are nodes as well, but they are never
// returned to users.
type Node[K comparable, V any] struct {
	link  atomic.Pointer[link[K, V]]
	soKey uint64 // split-order key: odd for items, even for sentinels
	hash  uint64
	key   K
	value V
}

// Key returns the key of the node
func (n *Node[K, V]) Key() K {
	return n.key
}

// Value returns the value of the node
func (n *Node[K, V]) Value() V {
	return n.value
}

// IsRemoved reports whether the node was removed or replaced
func (n *Node[K, V]) IsRemoved() bool {
	return n.link.Load().marked
}

func (n *Node[K, V]) isSentinel() bool {
	return n.soKey&1 == 0
}

// itemKey returns the split-order key of an item with the given hash
func itemKey(hash uint64) uint64 {
	return bits.Reverse64(hash | 1<<63)
}

// sentinelKey returns the split-order key of the sentinel of bucket index
func sentinelKey(index uint64) uint64 {
	return bits.Reverse64(index)
}

// parentIndex returns the bucket a new sentinel of index is inserted from (index with its
// highest bit cleared)
func parentIndex(index uint64) uint64 {
	return index &^ (1 << (bits.Len64(index) - 1))
}

func newSentinel[K comparable, V any](index uint64) *Node[K, V] {
	return &Node[K, V]{soKey: sentinelKey(index)}
}

// --------------------------------------------------------------------------
// List search
// --------------------------------------------------------------------------

// position is a place in the list: pred is unmarked and predLink was its link when it was
// read, curr is the successor of pred (nil at the end of the list)
type position[K comparable, V any] struct {
	pred     *Node[K, V]
	predLink *link[K, V]
	curr     *Node[K, V]
}

// search walks from head to the first node with soKey >= key (or > key if passEqual is set)
// and unlinks every marked node on the way. Returns false if head itself is marked, the caller
// has to reload the bucket array and try again.
func search[K comparable, V any](head *Node[K, V], key uint64, passEqual bool) (position[K, V], bool) {
retry:
	for {
		pred := head
		predLink := pred.link.Load()
		if predLink.marked {
			return position[K, V]{}, false
		}

		curr := predLink.next
		for curr != nil {
			currLink := curr.link.Load()

			if currLink.marked {
				// help unlinking curr
				unlinked := &link[K, V]{next: currLink.next}
				if !pred.link.CompareAndSwap(predLink, unlinked) {
					continue retry
				}
				predLink = unlinked
				curr = currLink.next
				continue
			}

			if curr.soKey > key || (curr.soKey == key && !passEqual) {
				break
			}
			pred, predLink, curr = curr, currLink, currLink.next
		}

		return position[K, V]{pred: pred, predLink: predLink, curr: curr}, true
	}
}

// searchKey positions at the end of the run of nodes with soKey and returns the first live
// node with an equal key in that run (nil if there is none). Marked nodes in the run are
// unlinked. Returns false if head is marked.
func searchKey[K comparable, V any](head *Node[K, V], soKey uint64, key K) (position[K, V], *Node[K, V], bool) {
retry:
	for {
		pos, ok := search(head, soKey, false)
		if !ok {
			return pos, nil, false
		}

		for pos.curr != nil && pos.curr.soKey == soKey {
			currLink := pos.curr.link.Load()

			if currLink.marked {
				unlinked := &link[K, V]{next: currLink.next}
				if !pos.pred.link.CompareAndSwap(pos.predLink, unlinked) {
					continue retry
				}
				pos.predLink = unlinked
				pos.curr = currLink.next
				continue
			}

			if pos.curr.key == key {
				return pos, pos.curr, true
			}
			pos.pred, pos.predLink, pos.curr = pos.curr, currLink, currLink.next
		}

		return pos, nil, true
	}
}

// insertAt links n between pos.pred and pos.curr. Fails if pred changed since it was read.
func insertAt[K comparable, V any](pos position[K, V], n *Node[K, V]) bool {
	n.link.Store(&link[K, V]{next: pos.curr})
	return pos.pred.link.CompareAndSwap(pos.predLink, &link[K, V]{next: n})
}
