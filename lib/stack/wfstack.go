package stack

import (
	"sync"

	"github.com/ValentinKolb/urcu/lib/util"
	"golang.org/x/sys/cpu"
)

// Options configures the WfStack
type Options struct {
	Backoff util.Backoff // strategy used while waiting for a push to link its node
}

// DefaultOptions returns the default stack options
func DefaultOptions() *Options {
	return &Options{
		Backoff: util.DefaultBackoff(),
	}
}

// WfStack is a stack with a wait-free Push. Pops are serialized by an internal lock.
//
// The stack never stores nil as a link of a linked node: the bottom node points to the end
// marker of the stack. A nil next pointer therefore always means "a push has exchanged the
// head but not linked its node yet".
//
// A WfStack must not be copied after creation.
type WfStack[T any] struct {
	head atomicNode[T]
	_    cpu.CacheLinePad

	popMu   sync.Mutex
	end     *node[T]
	backoff util.Backoff
}

// NewWfStack creates an empty stack with the specified options (optional)
func NewWfStack[T any](opts *Options) *WfStack[T] {
	if opts == nil {
		opts = DefaultOptions()
	}

	s := &WfStack[T]{
		end:     &node[T]{},
		backoff: opts.Backoff,
	}
	s.head.Store(s.end)
	return s
}

// Push adds a value on top of the stack.
//
// Thread-safety: This method is wait-free and can be called concurrently.
func (s *WfStack[T]) Push(value T) (wasEmpty bool) {
	n := &node[T]{value: value}

	// step 1: become the new head
	old := s.head.Swap(n)

	// step 2: link to the previous head
	n.next.Store(old)

	return old == s.end
}

// Pop removes and returns the top value, waiting for a concurrent Push to link its node if
// necessary.
//
// Thread-safety: This method is thread-safe. Pops are serialized.
func (s *WfStack[T]) Pop() (T, bool) {
	s.popMu.Lock()
	defer s.popMu.Unlock()

	v, ok, _ := s.pop(true)
	return v, ok
}

// TryPop is like Pop but returns ErrWouldBlock instead of waiting for a concurrent Push.
// If the stack is empty (zero value, false, nil) is returned.
//
// Thread-safety: This method is thread-safe. Pops are serialized.
func (s *WfStack[T]) TryPop() (T, bool, error) {
	s.popMu.Lock()
	defer s.popMu.Unlock()

	return s.pop(false)
}

// pop must be called with popMu held
func (s *WfStack[T]) pop(blocking bool) (value T, ok bool, err error) {
	for {
		top := s.head.Load()
		if top == s.end {
			return value, false, nil
		}

		next := top.next.Load()
		if next == nil {
			if !blocking {
				return value, false, ErrWouldBlock
			}
			next = s.waitNext(top)
		}

		/*
		 top can not have been popped by someone else (pop lock) and nodes are never reused,
		 so the CAS only fails if a concurrent Push replaced the head. Retry in that case.
		*/
		if s.head.CompareAndSwap(top, next) {
			return top.value, true, nil
		}
	}
}

// PopAll detaches the whole stack. Iterating the snapshot may wait for concurrent pushes
// that were in progress when PopAll was called.
//
// Thread-safety: This method is thread-safe. Pops are serialized.
func (s *WfStack[T]) PopAll() *Snapshot[T] {
	s.popMu.Lock()
	defer s.popMu.Unlock()

	return &Snapshot[T]{
		head: s.head.Swap(s.end),
		end:  s.end,
		wait: s.waitNext,
	}
}

// IsEmpty reports whether the stack is empty.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *WfStack[T]) IsEmpty() bool {
	return s.head.Load() == s.end
}

// waitNext returns the successor of n, waiting until the push of n has linked it
func (s *WfStack[T]) waitNext(n *node[T]) *node[T] {
	if next := n.next.Load(); next != nil {
		return next
	}

	w := s.backoff.Waiter()
	for {
		w.Wait()
		if next := n.next.Load(); next != nil {
			return next
		}
	}
}
