// Package testing provides standardised tests and benchmarks for
// implementations of the stack.Stack interface.
//
// The package contains:
//   - testing: A conformance suite for the Stack contract (LIFO order, snapshot isolation,
//     conservation of values under concurrent pushes and pops)
//   - benchmark: Throughput of push/pop pairs and of batched PopAll draining
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() stack.Stack[int] {
//		return NewMyStack[int]()
//	}
//
//	// Running the standard test suite
//	stacktesting.RunStackTests(t, "MyStack", factory)
//
//	// Running performance benchmarks
//	stacktesting.RunStackBenchmarks(b, "MyStack", factory)
package testing
