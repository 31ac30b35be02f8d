package stack

import (
	"sync/atomic"
)

type atomicNode[T any] = atomic.Pointer[node[T]]

// LfStack is a lock-free stack (Treiber stack). Push, Pop and PopAll are all lock-free.
//
// A LfStack must not be copied after creation.
type LfStack[T any] struct {
	head atomicNode[T]
}

// NewLfStack creates an empty stack
func NewLfStack[T any]() *LfStack[T] {
	return &LfStack[T]{}
}

// Push adds a value on top of the stack.
//
// Thread-safety: This method is lock-free and can be called concurrently.
func (s *LfStack[T]) Push(value T) (wasEmpty bool) {
	n := &node[T]{value: value}

	for {
		old := s.head.Load()
		n.next.Store(old)
		if s.head.CompareAndSwap(old, n) {
			return old == nil
		}
	}
}

// Pop removes and returns the top value.
//
// Thread-safety: This method is lock-free and can be called concurrently.
func (s *LfStack[T]) Pop() (T, bool) {
	for {
		top := s.head.Load()
		if top == nil {
			var zero T
			return zero, false
		}

		// top.next is immutable once top is published
		if s.head.CompareAndSwap(top, top.next.Load()) {
			return top.value, true
		}
	}
}

// PopAll detaches the whole stack.
//
// Thread-safety: This method is lock-free and can be called concurrently.
func (s *LfStack[T]) PopAll() *Snapshot[T] {
	return &Snapshot[T]{
		head: s.head.Swap(nil),
		end:  nil,
		wait: func(n *node[T]) *node[T] { return n.next.Load() },
	}
}

// IsEmpty reports whether the stack is empty.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *LfStack[T]) IsEmpty() bool {
	return s.head.Load() == nil
}

var (
	_ Stack[int] = (*LfStack[int])(nil)
	_ Stack[int] = (*WfStack[int])(nil)
)
