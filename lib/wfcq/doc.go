// Package wfcq implements a wait-free concurrent queue with separate head and tail pointers.
//
// Features and Guarantees:
//
//   - Wait-Free Enqueue: Enqueue is a single atomic exchange of the tail followed by a plain
//     atomic store linking the previous tail to the new node. It completes in a bounded number of
//     steps regardless of other goroutines.
//   - Unbounded Size: the queue grows as needed, limited only by available memory
//   - Any number of producers: Enqueue is safe to call from any number of goroutines concurrently
//   - Single Consumer: DequeueBlocking, DequeueNonblocking and SpliceBlocking may only be called by
//     one goroutine at a time (per queue). Callers that need multiple consumers must serialize
//     the dequeue side themselves. Enabling Options.Debug detects overlapping dequeuers.
//   - FIFO: nodes are dequeued in the order in which their tail exchange happened
//
// The producer gap:
//
//	Because Enqueue publishes a node in two steps (first the tail exchange, then the link from
//	the previous node), a consumer can observe a queue whose tail already points to a new node
//	while the chain from the head does not reach it yet. The consumer tolerates this by waiting
//	(spin, then yield, then sleep, see util.Backoff) for the link to appear. The wait is bounded in
//	practice because the producer always completes the second step without blocking.
//	DequeueNonblocking reports ErrWouldBlock instead of waiting.
//
// Empty detection:
//
//	The queue is truly empty only if the sentinel head has no successor AND the tail still refers
//	to the sentinel. A consumer never reports "empty" while a producer is in the gap.
//
// Usage Example:
//
//	q := wfcq.New[int](nil)
//	q.Enqueue(1)
//	q.Enqueue(2)
//
//	for {
//	    v, ok := q.DequeueBlocking()
//	    if !ok {
//	        break // queue is empty
//	    }
//	    fmt.Println(v)
//	}
package wfcq
