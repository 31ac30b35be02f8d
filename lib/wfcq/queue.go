package wfcq

import (
	"errors"
	"sync/atomic"

	"github.com/ValentinKolb/urcu/lib/util"
	"golang.org/x/sys/cpu"
)

// ErrWouldBlock is returned by the non-blocking operations if they would have to wait
// for a producer to finish linking its node.
var ErrWouldBlock = errors.New("wfcq: operation would block")

// SpliceState describes the outcome of a splice operation
type SpliceState int

const (
	SpliceEmpty         SpliceState = iota // the source queue was empty, nothing was moved
	SpliceFirstEmpty                       // nodes were moved, the destination was empty before
	SpliceFirstNonEmpty                    // nodes were moved, the destination was not empty before
)

func (s SpliceState) String() string {
	switch s {
	case SpliceEmpty:
		return "Empty"
	case SpliceFirstEmpty:
		return "FirstEmpty"
	case SpliceFirstNonEmpty:
		return "FirstNonEmpty"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

type node[T any] struct {
	next  atomic.Pointer[node[T]]
	value T
}

// Options configures the queue behavior
type Options struct {
	Backoff util.Backoff // strategy used while waiting in the producer gap
	Debug   bool         // panic if two dequeuers overlap
}

// DefaultOptions returns the default queue options
func DefaultOptions() *Options {
	return &Options{
		Backoff: util.DefaultBackoff(),
		Debug:   false,
	}
}

// Queue is a wait-free multi-producer single-consumer queue.
// A Queue must not be copied after creation.
type Queue[T any] struct {
	// consumer side
	head node[T] // sentinel
	_    cpu.CacheLinePad

	// producer side
	tail atomic.Pointer[node[T]]
	_    cpu.CacheLinePad

	backoff   util.Backoff
	debug     bool
	dequeuers atomic.Int32
}

// New creates an empty queue with the specified options (optional)
func New[T any](opts *Options) *Queue[T] {
	if opts == nil {
		opts = DefaultOptions()
	}

	q := &Queue[T]{
		backoff: opts.Backoff,
		debug:   opts.Debug,
	}
	q.tail.Store(&q.head)
	return q
}

// --------------------------------------------------------------------------
// Producer side
// --------------------------------------------------------------------------

// Enqueue appends a value to the tail of the queue.
// Returns true if the queue was empty before the value was added.
//
// Thread-safety: This method is wait-free and can be called concurrently.
func (q *Queue[T]) Enqueue(value T) (wasEmpty bool) {
	return q.append(&node[T]{value: value}, nil)
}

// append links the chain first..last (last == nil means a single node) at the tail
func (q *Queue[T]) append(first, last *node[T]) bool {
	if last == nil {
		last = first
	}

	// step 1: claim the tail position
	old := q.tail.Swap(last)

	// step 2: publish the link (this closes the producer gap)
	old.next.Store(first)

	return old == &q.head
}

// --------------------------------------------------------------------------
// Consumer side
// --------------------------------------------------------------------------

// IsEmpty reports whether the queue is empty. A queue with a producer in the middle of an
// Enqueue is not empty.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *Queue[T]) IsEmpty() bool {
	return q.head.next.Load() == nil && q.tail.Load() == &q.head
}

// DequeueBlocking removes and returns the value at the head of the queue.
// If a producer is in the middle of an Enqueue, the call waits for it.
// The boolean is false only if the queue was empty.
//
// Thread-safety: Only one goroutine may dequeue at a time.
func (q *Queue[T]) DequeueBlocking() (T, bool) {
	v, ok, _ := q.dequeue(true)
	return v, ok
}

// DequeueNonblocking is like DequeueBlocking but returns ErrWouldBlock instead of
// waiting for a producer to link its node.
//
// Thread-safety: Only one goroutine may dequeue at a time.
func (q *Queue[T]) DequeueNonblocking() (T, bool, error) {
	return q.dequeue(false)
}

func (q *Queue[T]) dequeue(blocking bool) (value T, ok bool, err error) {
	if q.debug {
		q.enterConsumer()
		defer q.dequeuers.Add(-1)
	}

	if q.IsEmpty() {
		return value, false, nil
	}

	n := q.nextOf(&q.head, blocking)
	if n == nil {
		return value, false, ErrWouldBlock
	}

	next := n.next.Load()
	if next == nil {
		/*
		 n looks like the last node. Detach it from the sentinel and try to move the tail
		 back to the sentinel. If that fails a producer has already exchanged the tail
		 and is about to link n.next.
		*/
		q.head.next.Store(nil)
		if q.tail.CompareAndSwap(n, &q.head) {
			return n.value, true, nil
		}

		next = q.nextOf(n, blocking)
		if next == nil {
			// undo the detach so the next call sees a consistent queue
			q.head.next.Store(n)
			return value, false, ErrWouldBlock
		}
	}

	q.head.next.Store(next)
	return n.value, true, nil
}

// SpliceBlocking moves all nodes of src to the tail of q.
// Producers of both queues may keep enqueueing concurrently.
//
// Thread-safety: The caller must be the only dequeuer of src. The destination q only
// sees an Enqueue-like append and needs no consumer exclusion.
func (q *Queue[T]) SpliceBlocking(src *Queue[T]) SpliceState {
	if src.debug {
		src.enterConsumer()
		defer src.dequeuers.Add(-1)
	}

	if src.IsEmpty() {
		return SpliceEmpty
	}

	first := src.nextOf(&src.head, true)

	// detach the chain from the source: reset the sentinel, then take over the tail
	src.head.next.Store(nil)
	last := src.tail.Swap(&src.head)

	if q.append(first, last) {
		return SpliceFirstEmpty
	}
	return SpliceFirstNonEmpty
}

// Len counts the nodes currently reachable from the head. It waits for producer gaps
// and is O(n), it should only be used for debugging and tests.
//
// Thread-safety: Must not run concurrently with a dequeue.
func (q *Queue[T]) Len() int {
	count := 0
	for n := &q.head; ; count++ {
		if n == q.tail.Load() {
			return count
		}
		n = q.nextOf(n, true)
	}
}

// nextOf returns the successor of n. If the successor is not linked yet the call waits
// (blocking) or returns nil (non-blocking).
func (q *Queue[T]) nextOf(n *node[T], blocking bool) *node[T] {
	if next := n.next.Load(); next != nil || !blocking {
		return next
	}

	w := q.backoff.Waiter()
	for {
		w.Wait()
		if next := n.next.Load(); next != nil {
			return next
		}
	}
}

func (q *Queue[T]) enterConsumer() {
	if q.dequeuers.Add(1) != 1 {
		q.dequeuers.Add(-1)
		panic("wfcq: concurrent dequeuers detected (the dequeue side allows a single consumer)")
	}
}
