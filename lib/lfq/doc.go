// Package lfq provides a lock-free Multi-Producer Multi-Consumer (MPMC) queue.
//
// Features and Guarantees:
//
//   - Lock-Free: Enqueue and Dequeue are compare-and-swap loops, a stalled goroutine never
//     blocks the others (Michael-Scott queue with tail helping)
//   - Unbounded Size: the queue can grow to any size as needed, limited only by available memory
//   - Thread-Safe: any number of goroutines may enqueue and dequeue concurrently
//   - FIFO per producer: values of one producer are dequeued in the order they were enqueued.
//     Across producers the order is determined by which producer completes its operation first.
//   - Blocking receive: DequeueWait sleeps until a value is available, the queue is closed or
//     the context is cancelled
//
// Nodes are never reused, so a dequeued node can not reappear at the head while another
// consumer still inspects it (no ABA problem). Compared to the wfcq package, Enqueue may
// retry under contention, in exchange there is no producer gap and no consumer lock.
package lfq
