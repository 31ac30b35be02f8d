package lfq

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ValentinKolb/urcu/lib/util"
	"golang.org/x/sys/cpu"
)

// ErrClosed is returned by DequeueWait once the queue is closed and drained
var ErrClosed = errors.New("lfq: queue closed")

// contention is the backoff after a lost race for the tail link. Every step is at most one
// yield, so a producer never sleeps while the queue makes progress.
var contention = util.Backoff{Spins: 4, Yields: 1 << 10}

// node represents a single element in the queue
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// Queue is a lock-free multi-producer multi-consumer queue.
// The head always points to a sentinel, the first value is stored in its successor.
type Queue[T any] struct {
	head atomic.Pointer[node[T]]
	_    cpu.CacheLinePad
	tail atomic.Pointer[node[T]]
	_    cpu.CacheLinePad

	closed atomic.Bool
	notify chan struct{} // wakes one waiting consumer
	done   chan struct{} // closed by Close, wakes all waiting consumers
}

// New creates an empty queue
func New[T any]() *Queue[T] {
	sentinel := &node[T]{}

	q := &Queue[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Enqueue adds a value at the tail.
// Returns true if the value was added, or false if the queue is closed.
//
// Thread-safety: This method is lock-free and can be called concurrently.
func (q *Queue[T]) Enqueue(value T) bool {
	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	w := contention.Waiter()

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()

		if next != nil {
			// another producer appended but has not moved the tail yet, help it
			q.tail.CompareAndSwap(tailNode, next)
			continue
		}

		if tailNode.next.CompareAndSwap(nil, newNode) {
			/*
			 Appended. Swinging the tail may fail if another goroutine already helped,
			 the tail is updated either way.
			*/
			q.tail.CompareAndSwap(tailNode, newNode)
			q.wakeOne()
			return true
		}

		// lost the link to another producer
		w.Wait()
	}
}

// Dequeue removes and returns the value at the head.
// The boolean is false if the queue is empty.
//
// Thread-safety: This method is lock-free and can be called concurrently.
func (q *Queue[T]) Dequeue() (T, bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()

		if next == nil {
			var zero T
			return zero, false
		}

		// the tail lags behind, move it before the head can pass it
		if head == tail {
			q.tail.CompareAndSwap(tail, next)
			continue
		}

		/*
		 next becomes the new sentinel. Only the goroutine that moved the head owns its value,
		 the sentinel must not keep the value reachable.
		*/
		if q.head.CompareAndSwap(head, next) {
			value := next.value
			var zero T
			next.value = zero
			return value, true
		}
	}
}

// DequeueWait is like Dequeue but waits until a value is available. Returns ErrClosed once
// the queue is closed and empty, or the context error if ctx is done first.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *Queue[T]) DequeueWait(ctx context.Context) (T, error) {
	var zero T

	for {
		if v, ok := q.Dequeue(); ok {
			// pass the wakeup on if there is more
			if !q.IsEmpty() {
				q.wakeOne()
			}
			return v, nil
		}

		if q.closed.Load() {
			// an Enqueue may have completed after the Dequeue above
			if v, ok := q.Dequeue(); ok {
				return v, nil
			}
			return zero, ErrClosed
		}

		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func (q *Queue[T]) wakeOne() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// IsEmpty reports whether the queue currently holds no value
func (q *Queue[T]) IsEmpty() bool {
	return q.head.Load().next.Load() == nil
}

// Close closes the queue, preventing further enqueues.
// Values already in the queue can still be dequeued.
func (q *Queue[T]) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.done)
	}
}

// IsClosed returns true if the queue is closed.
func (q *Queue[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns an approximate count of the number of items in the queue.
// This is O(n) and should only be used for debugging.
func (q *Queue[T]) Len() int {
	count := 0
	current := q.head.Load()

	for {
		next := current.next.Load()
		if next == nil {
			break
		}
		count++
		current = next
	}

	return count
}
