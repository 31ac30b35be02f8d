package testing

import (
	"testing"

	"github.com/ValentinKolb/urcu/lib/stack"
)

// RunStackBenchmarks runs the benchmarks for a stack implementation
func RunStackBenchmarks(b *testing.B, name string, factory StackFactory) {
	b.Run(name+"/Push", func(b *testing.B) {
		benchmarkPush(b, factory())
	})

	b.Run(name+"/PushPop", func(b *testing.B) {
		benchmarkPushPop(b, factory())
	})

	b.Run(name+"/PushPopAll", func(b *testing.B) {
		benchmarkPushPopAll(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkPush(b *testing.B, s stack.Stack[int]) {
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			s.Push(i)
			i++
		}
	})
}

func benchmarkPushPop(b *testing.B, s stack.Stack[int]) {
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			s.Push(i)
			s.Pop()
			i++
		}
	})
}

func benchmarkPushPopAll(b *testing.B, s stack.Stack[int]) {
	const batch = 64

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Push(i)
		if i%batch == batch-1 {
			for range s.PopAll().All() {
			}
		}
	}
}
