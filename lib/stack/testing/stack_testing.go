package testing

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/urcu/lib/stack"
)

// StackFactory is a function that creates a new, empty stack
type StackFactory func() stack.Stack[int]

// RunStackTests runs the conformance suite for a stack implementation.
func RunStackTests(t *testing.T, name string, factory StackFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Conservation", func(t *testing.T) {
			testConservation(t, factory())
		})

		t.Run("EmptyStack", func(t *testing.T) {
			testEmptyStack(t, factory())
		})

		t.Run("PopAllSnapshot", func(t *testing.T) {
			testPopAllSnapshot(t, factory())
		})

		t.Run("SnapshotEarlyBreak", func(t *testing.T) {
			testSnapshotEarlyBreak(t, factory())
		})

		t.Run("ConcurrentPushPop", func(t *testing.T) {
			testConcurrentPushPop(t, factory())
		})

		t.Run("ConcurrentPopAll", func(t *testing.T) {
			testConcurrentPopAll(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func collect(snapshot *stack.Snapshot[int]) []int {
	var values []int
	for v := range snapshot.All() {
		values = append(values, v)
	}
	return values
}

func equalSlices(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testConservation(t *testing.T, s stack.Stack[int]) {
	values := []int{-5, 42, 36, 24}

	for i, v := range values {
		if wasEmpty := s.Push(v); wasEmpty != (i == 0) {
			t.Errorf("Push(%d): expected wasEmpty=%v, got %v", v, i == 0, wasEmpty)
		}
	}

	if s.IsEmpty() {
		t.Fatal("Stack should not be empty after pushes")
	}

	// LIFO
	for i := len(values) - 1; i >= 0; i-- {
		got, ok := s.Pop()
		if !ok {
			t.Fatalf("Expected %d, stack reported empty", values[i])
		}
		if got != values[i] {
			t.Errorf("Expected %d, got %d", values[i], got)
		}
	}

	if v, ok := s.Pop(); ok {
		t.Errorf("Expected empty stack, got %d", v)
	}
	if !s.IsEmpty() {
		t.Error("Stack should be empty")
	}
}

func testEmptyStack(t *testing.T, s stack.Stack[int]) {
	if !s.IsEmpty() {
		t.Error("New stack should be empty")
	}

	if v, ok := s.Pop(); ok || v != 0 {
		t.Errorf("Pop on empty stack: expected (0, false), got (%d, %v)", v, ok)
	}

	snapshot := s.PopAll()
	if snapshot == nil {
		t.Fatal("PopAll must never return nil")
	}
	if !snapshot.IsEmpty() || snapshot.Len() != 0 {
		t.Errorf("Expected empty snapshot, got %d values", snapshot.Len())
	}

	// the stack stays usable
	if wasEmpty := s.Push(1); !wasEmpty {
		t.Error("Push on empty stack should report wasEmpty")
	}
}

func testPopAllSnapshot(t *testing.T, s stack.Stack[int]) {
	for i := 1; i <= 3; i++ {
		s.Push(i)
	}

	snapshot := s.PopAll()
	if !s.IsEmpty() {
		t.Error("Stack should be empty after PopAll")
	}

	// later pushes must not show up in the snapshot
	s.Push(4)

	if got, want := collect(snapshot), []int{3, 2, 1}; !equalSlices(got, want) {
		t.Errorf("Expected snapshot %v, got %v", want, got)
	}
	if snapshot.Len() != 3 {
		t.Errorf("Expected snapshot length 3, got %d", snapshot.Len())
	}

	// iterating twice yields the same values
	if got, want := collect(snapshot), []int{3, 2, 1}; !equalSlices(got, want) {
		t.Errorf("Second iteration: expected %v, got %v", want, got)
	}

	if v, ok := s.Pop(); !ok || v != 4 {
		t.Errorf("Expected 4, got %d (ok=%v)", v, ok)
	}
}

func testSnapshotEarlyBreak(t *testing.T, s stack.Stack[int]) {
	for i := 0; i < 10; i++ {
		s.Push(i)
	}

	seen := 0
	for v := range s.PopAll().All() {
		if v != 9-seen {
			t.Errorf("Expected %d, got %d", 9-seen, v)
		}
		seen++
		if seen == 3 {
			break
		}
	}
	if seen != 3 {
		t.Errorf("Expected 3 iterations before break, got %d", seen)
	}
}

func testConcurrentPushPop(t *testing.T, s stack.Stack[int]) {
	const numProducers = 4
	const numConsumers = 4
	const itemsPerProducer = 2000
	total := numProducers * itemsPerProducer

	var seen [numProducers * itemsPerProducer]atomic.Int32
	var popped atomic.Int64
	var producersDone atomic.Bool

	var producers sync.WaitGroup
	producers.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func(producerID int) {
			defer producers.Done()
			for i := 0; i < itemsPerProducer; i++ {
				s.Push(producerID*itemsPerProducer + i)
			}
		}(p)
	}

	var consumers sync.WaitGroup
	consumers.Add(numConsumers)
	for c := 0; c < numConsumers; c++ {
		go func() {
			defer consumers.Done()
			for {
				v, ok := s.Pop()
				if !ok {
					if producersDone.Load() && s.IsEmpty() {
						return
					}
					continue
				}
				if seen[v].Add(1) != 1 {
					t.Errorf("Value %d popped twice", v)
				}
				popped.Add(1)
			}
		}()
	}

	producers.Wait()
	producersDone.Store(true)

	done := make(chan struct{})
	go func() {
		consumers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Timeout waiting for consumers")
	}

	if got := popped.Load(); got != int64(total) {
		t.Errorf("Expected %d popped values, got %d", total, got)
	}
	for v := 0; v < total; v++ {
		if seen[v].Load() != 1 {
			t.Errorf("Value %d was popped %d times", v, seen[v].Load())
			break
		}
	}
}

func testConcurrentPopAll(t *testing.T, s stack.Stack[int]) {
	const numProducers = 4
	const itemsPerProducer = 2000
	total := numProducers * itemsPerProducer

	var producers sync.WaitGroup
	producers.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func(producerID int) {
			defer producers.Done()
			for i := 0; i < itemsPerProducer; i++ {
				s.Push(producerID*itemsPerProducer + i)
			}
		}(p)
	}

	producersDone := make(chan struct{})
	go func() {
		producers.Wait()
		close(producersDone)
	}()

	seen := make([]bool, total)
	count := 0
	drain := func() {
		for v := range s.PopAll().All() {
			if seen[v] {
				t.Fatalf("Value %d returned twice", v)
			}
			seen[v] = true
			count++
		}
	}

	timeout := time.After(10 * time.Second)
loop:
	for {
		select {
		case <-producersDone:
			break loop
		case <-timeout:
			t.Fatal("Timeout waiting for producers")
		default:
			drain()
		}
	}
	drain()

	if count != total {
		t.Errorf("Expected %d values, got %d", total, count)
	}
}
