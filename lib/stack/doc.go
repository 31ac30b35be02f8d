/*
Package stack provides two concurrent LIFO stacks that share the Stack interface.

# Implementations

  - WfStack: Push is wait-free (one atomic exchange followed by one store). Pop and PopAll
    serialize on an internal pop lock. A pop that meets a node whose successor is not linked
    yet (a producer between its exchange and its store) waits with the configured backoff.
    TryPop returns ErrWouldBlock instead of waiting.
  - LfStack: Push and Pop are lock-free compare-and-swap loops. PopAll atomically exchanges the
    head with nil and never waits.

Every Push allocates a fresh node and nodes are never reused, so a popped node can not reappear
at the head while another goroutine still holds it. This rules out the ABA problem of classic
lock-free stacks without tagged pointers.

# Snapshots

PopAll detaches the whole chain and returns it as a Snapshot. The snapshot is private to the
caller: later pushes never become visible through it. Snapshots are iterated sequentially:

	for v := range s.PopAll().All() {
		fmt.Println(v)
	}

# Conformance

Both implementations are tested with the shared suite in the stack/testing package. New
implementations should be tested with it as well.
*/
package stack
