// Package rculist provides a doubly linked list for read-mostly data protected by RCU.
//
// Readers traverse the list without locks inside a read-side critical section (see package rcu).
// Writers serialize on an internal mutex. Every change becomes visible to readers with a single
// atomic pointer store of a fully initialised node, so a reader either sees a node completely
// or not at all.
//
// A removed node keeps its forward pointer: a reader that is currently positioned on it still
// reaches the rest of the list. The node must not be reused or released before a grace period
// has elapsed, hand it to rcu.Domain.CallRCU or call Synchronize before releasing resources
// owned by its value.
//
// Traversals are single-pass and never restart. A traversal that runs concurrently with writers
// may or may not observe nodes inserted or removed during the traversal.
//
// Example usage:
//
//	l := rculist.New[string]()
//	l.PushBack("a")
//	n := l.PushBack("b")
//
//	r.ReadLock()
//	for v := range l.Values() {
//		fmt.Println(v)
//	}
//	r.ReadUnlock()
//
//	if l.Remove(n) {
//		d.CallRCU(func() { release(n.Value()) })
//	}
package rculist
