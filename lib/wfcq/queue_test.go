package wfcq

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"
)

// TestConservation verifies FIFO order and that an empty queue reports "none"
func TestConservation(t *testing.T) {
	q := New[int](nil)

	values := []int{-5, 42, 36, 24}
	for i, v := range values {
		wasEmpty := q.Enqueue(v)
		if wasEmpty != (i == 0) {
			t.Errorf("Enqueue(%d): expected wasEmpty=%v, got %v", v, i == 0, wasEmpty)
		}
	}

	if l := q.Len(); l != len(values) {
		t.Errorf("Expected Len()=%d, got %d", len(values), l)
	}

	for _, want := range values {
		got, ok := q.DequeueBlocking()
		if !ok {
			t.Fatalf("Expected value %d, queue reported empty", want)
		}
		if got != want {
			t.Errorf("Expected %d, got %d", want, got)
		}
	}

	if v, ok := q.DequeueBlocking(); ok {
		t.Errorf("Expected empty queue, got %d", v)
	}
	if _, ok, err := q.DequeueNonblocking(); ok || err != nil {
		t.Errorf("Expected (none, nil) from empty queue, got ok=%v err=%v", ok, err)
	}
	if !q.IsEmpty() {
		t.Error("Queue should be empty")
	}
}

// TestProducerGap simulates a producer that exchanged the tail but did not link its node yet
func TestProducerGap(t *testing.T) {
	q := New[string](nil)
	q.Enqueue("first")

	// step 1 of an enqueue only
	pending := &node[string]{value: "second"}
	prev := q.tail.Swap(pending)

	if q.IsEmpty() {
		t.Fatal("A queue with a producer in the gap must not be empty")
	}

	// the first value is reachable, but it is the predecessor of the pending node
	if _, _, err := q.DequeueNonblocking(); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("Expected ErrWouldBlock, got %v", err)
	}

	// a blocking dequeue waits until the producer finishes
	done := make(chan string)
	go func() {
		v, _ := q.DequeueBlocking()
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	prev.next.Store(pending) // step 2

	select {
	case v := <-done:
		if v != "first" {
			t.Errorf("Expected 'first', got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for blocking dequeue")
	}

	if v, ok := q.DequeueBlocking(); !ok || v != "second" {
		t.Errorf("Expected 'second', got %q (ok=%v)", v, ok)
	}
	if _, ok := q.DequeueBlocking(); ok {
		t.Error("Queue should be empty")
	}
}

// TestEmptyDuringGap checks that an "empty" queue with a pending producer is not reported as empty
func TestEmptyDuringGap(t *testing.T) {
	q := New[int](nil)

	pending := &node[int]{value: 7}
	prev := q.tail.Swap(pending)

	if _, ok, err := q.DequeueNonblocking(); ok || !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("Expected ErrWouldBlock, got ok=%v err=%v", ok, err)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		prev.next.Store(pending)
	}()

	if v, ok := q.DequeueBlocking(); !ok || v != 7 {
		t.Errorf("Expected 7, got %d (ok=%v)", v, ok)
	}
}

// TestConcurrentProducers verifies that no value is lost or duplicated with many producers
func TestConcurrentProducers(t *testing.T) {
	q := New[int](nil)

	const numProducers = 8
	const itemsPerProducer = 5000
	total := numProducers * itemsPerProducer

	var wg sync.WaitGroup
	wg.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func(producerID int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				q.Enqueue(producerID*itemsPerProducer + i)
				if i%100 == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}

	// single consumer, runs concurrently with the producers
	seen := make([]bool, total)
	lastPerProducer := make([]int, numProducers)
	for i := range lastPerProducer {
		lastPerProducer[i] = -1
	}

	received := 0
	deadline := time.Now().Add(10 * time.Second)
	for received < total {
		v, ok := q.DequeueBlocking()
		if !ok {
			if time.Now().After(deadline) {
				t.Fatalf("Timeout, received %d of %d", received, total)
			}
			runtime.Gosched()
			continue
		}
		if seen[v] {
			t.Fatalf("Duplicate value %d", v)
		}
		seen[v] = true

		// values of a single producer stay in order
		producer, seq := v/itemsPerProducer, v%itemsPerProducer
		if seq <= lastPerProducer[producer] {
			t.Errorf("Producer %d: value %d after %d", producer, seq, lastPerProducer[producer])
		}
		lastPerProducer[producer] = seq
		received++
	}

	wg.Wait()
	if !q.IsEmpty() {
		t.Error("Queue should be empty after consuming everything")
	}
}

// TestSplice moves the content of one queue to another
func TestSplice(t *testing.T) {
	src := New[int](nil)
	dst := New[int](nil)

	if state := dst.SpliceBlocking(src); state != SpliceEmpty {
		t.Errorf("Expected %s, got %s", SpliceEmpty, state)
	}

	for i := 0; i < 3; i++ {
		src.Enqueue(i)
	}
	if state := dst.SpliceBlocking(src); state != SpliceFirstEmpty {
		t.Errorf("Expected %s, got %s", SpliceFirstEmpty, state)
	}

	for i := 3; i < 5; i++ {
		src.Enqueue(i)
	}
	if state := dst.SpliceBlocking(src); state != SpliceFirstNonEmpty {
		t.Errorf("Expected %s, got %s", SpliceFirstNonEmpty, state)
	}

	if !src.IsEmpty() {
		t.Error("Source should be empty after splice")
	}

	// the source stays usable
	src.Enqueue(100)
	if v, ok := src.DequeueBlocking(); !ok || v != 100 {
		t.Errorf("Expected 100 from source, got %d (ok=%v)", v, ok)
	}

	for want := 0; want < 5; want++ {
		got, ok := dst.DequeueBlocking()
		if !ok || got != want {
			t.Fatalf("Expected %d, got %d (ok=%v)", want, got, ok)
		}
	}
	if _, ok := dst.DequeueBlocking(); ok {
		t.Error("Destination should be empty")
	}
}

// TestDebugDetectsConcurrentDequeuers checks the single consumer assertion
func TestDebugDetectsConcurrentDequeuers(t *testing.T) {
	q := New[int](&Options{Backoff: DefaultOptions().Backoff, Debug: true})
	q.Enqueue(1)

	// pretend another consumer is inside a dequeue
	q.dequeuers.Store(1)

	defer func() {
		if recover() == nil {
			t.Error("Expected a panic for overlapping dequeuers")
		}
	}()
	q.DequeueBlocking()
}

func BenchmarkEnqueueParallel(b *testing.B) {
	q := New[int](nil)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			q.Enqueue(i)
			i++
		}
	})
}

func BenchmarkEnqueueDequeue(b *testing.B) {
	q := New[int](nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Enqueue(i)
		q.DequeueBlocking()
	}
}
