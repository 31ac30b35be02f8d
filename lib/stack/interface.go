package stack

import (
	"errors"
	"iter"
	"sync/atomic"
)

// ErrWouldBlock is returned by TryPop if the pop would have to wait for a concurrent push
var ErrWouldBlock = errors.New("stack: operation would block")

// Stack is the contract shared by all stack implementations of this package
type Stack[T any] interface {
	// Push adds a value on top of the stack.
	// Returns true if the stack was empty before the push.
	Push(value T) (wasEmpty bool)

	// Pop removes and returns the top value.
	// The boolean is false if the stack is empty.
	Pop() (T, bool)

	// PopAll detaches all values at once and returns them as a snapshot (top first).
	// The result is never nil, it is empty if the stack was empty.
	PopAll() *Snapshot[T]

	// IsEmpty reports whether the stack currently holds no value
	IsEmpty() bool
}

// --------------------------------------------------------------------------
// Internal node
// --------------------------------------------------------------------------

type node[T any] struct {
	next  atomic.Pointer[node[T]]
	value T
}

// --------------------------------------------------------------------------
// Snapshot
// --------------------------------------------------------------------------

// Snapshot is a chain of nodes detached by PopAll.
//
// Thread-safety: A snapshot must only be used by one goroutine at a time.
type Snapshot[T any] struct {
	head *node[T]
	// end marks the end of the chain (nil for LfStack, a marker node for WfStack)
	end *node[T]
	// wait returns the successor of a node, waiting for concurrent pushes to link it
	wait func(n *node[T]) *node[T]
}

// All iterates over the values of the snapshot from top to bottom
func (s *Snapshot[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for n := s.head; n != s.end; n = s.wait(n) {
			if !yield(n.value) {
				return
			}
		}
	}
}

// Len returns the number of values in the snapshot
func (s *Snapshot[T]) Len() int {
	count := 0
	for range s.All() {
		count++
	}
	return count
}

// IsEmpty reports whether the snapshot holds no value
func (s *Snapshot[T]) IsEmpty() bool {
	return s.head == s.end
}
