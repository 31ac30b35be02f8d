package perf

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/urcu/lib/common"
	"github.com/ValentinKolb/urcu/lib/lfht"
	"github.com/ValentinKolb/urcu/lib/lfq"
	"github.com/ValentinKolb/urcu/lib/rcu"
	"github.com/ValentinKolb/urcu/lib/rculist"
	"github.com/ValentinKolb/urcu/lib/stack"
	"github.com/ValentinKolb/urcu/lib/wfcq"
	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// suite owns the domain and the containers shared by the benchmarks
type suite struct {
	domain *rcu.Domain
	list   *rculist.List[int]
	table  *lfht.Table[uint64, int]

	syncLatency    gometrics.Timer
	barrierLatency gometrics.Timer
	key            atomic.Uint64
}

func newSuite(conf *common.Config) (*suite, error) {
	opts, err := conf.DomainOptions("perf")
	if err != nil {
		return nil, err
	}

	s := &suite{
		domain:         rcu.NewDomain(opts),
		list:           rculist.New[int](),
		syncLatency:    gometrics.NewTimer(),
		barrierLatency: gometrics.NewTimer(),
	}
	s.table = lfht.New[uint64, int](s.domain, conf.TableOptions("perf"))

	r, err := s.domain.Register()
	if err != nil {
		return nil, err
	}
	defer r.Unregister()

	r.ReadLock()
	for i := 0; i < perfKeySpread; i++ {
		s.list.PushBack(i)
		s.table.Add(uint64(i), i)
	}
	r.ReadUnlock()

	return s, nil
}

func (s *suite) close() {
	s.table.Close()
	s.domain.Close()
}

func (s *suite) metricSets() []*metrics.Set {
	return []*metrics.Set{s.domain.Metrics(), s.domain.Reclaimer().Metrics(), s.table.Metrics()}
}

// parallel runs fn on perfNumThreads goroutines per GOMAXPROCS, each with its own reader.
// The reader reports a quiescent state after every call.
func (s *suite) parallel(b *testing.B, fn func(r *rcu.Reader, i int)) {
	b.SetParallelism(perfNumThreads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		r, err := s.domain.Register()
		if err != nil {
			b.Error(err)
			return
		}
		defer r.Unregister()

		for i := 0; pb.Next(); i++ {
			fn(r, i)
			r.QuiescentState()
		}
	})
}

func (s *suite) nextKey() uint64 {
	return s.key.Add(1) % uint64(perfKeySpread)
}

// runAll runs every benchmark that is not skipped and prints its result
func (s *suite) runAll() map[string]testing.BenchmarkResult {
	results := make(map[string]testing.BenchmarkResult)

	for _, bench := range s.benchmarks() {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(bench.name) {
				return
			}
			bench.fn(b)
		})
		results[bench.name] = result
		printResult(bench.name, result)
	}

	return results
}

func (s *suite) printLatencies() {
	for _, l := range []struct {
		name  string
		timer gometrics.Timer
	}{{"synchronize", s.syncLatency}, {"barrier", s.barrierLatency}} {
		if l.timer.Count() == 0 {
			continue
		}
		ps := l.timer.Percentiles([]float64{0.5, 0.9, 0.99})
		fmt.Printf("%-20sp50 %s  p90 %s  p99 %s  max %s\n", l.name+" latency",
			time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]), time.Duration(l.timer.Max()))
	}
}

type benchmark struct {
	name string
	fn   func(b *testing.B)
}

func (s *suite) benchmarks() []benchmark {
	return []benchmark{
		// ---- Grace periods ----
		{"read-lock", func(b *testing.B) {
			s.parallel(b, func(r *rcu.Reader, _ int) {
				r.ReadLock()
				r.ReadUnlock()
			})
		}},
		{"synchronize", func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				s.syncLatency.Time(s.domain.Synchronize)
			}
		}},
		{"call-rcu", func(b *testing.B) {
			var invoked atomic.Int64
			s.parallel(b, func(_ *rcu.Reader, _ int) {
				if err := s.domain.CallRCU(func() { invoked.Add(1) }); err != nil {
					b.Error(err)
				}
			})
			s.barrierLatency.Time(s.domain.Barrier)
		}},

		// ---- Containers ----
		{"list-traverse", func(b *testing.B) {
			s.parallel(b, func(r *rcu.Reader, _ int) {
				r.ReadLock()
				for range s.list.Values() {
				}
				r.ReadUnlock()
			})
		}},
		{"list-replace", func(b *testing.B) {
			s.parallel(b, func(r *rcu.Reader, i int) {
				r.ReadLock()
				n := s.list.Front()
				r.ReadUnlock()
				if n != nil {
					s.list.Replace(n, i)
				}
			})
		}},
		{"lfht-lookup", func(b *testing.B) {
			s.parallel(b, func(r *rcu.Reader, _ int) {
				r.ReadLock()
				s.table.LookupFirst(s.nextKey())
				r.ReadUnlock()
			})
		}},
		{"lfht-add-remove", func(b *testing.B) {
			s.parallel(b, func(r *rcu.Reader, i int) {
				key := uint64(perfKeySpread) + s.nextKey()
				r.ReadLock()
				n := s.table.Add(key, i)
				_ = s.table.Remove(n)
				r.ReadUnlock()
			})
		}},
		{"lfht-add-replace", func(b *testing.B) {
			s.parallel(b, func(r *rcu.Reader, i int) {
				r.ReadLock()
				s.table.AddReplace(s.nextKey(), i)
				r.ReadUnlock()
			})
		}},
		{"wfcq-enqueue", func(b *testing.B) {
			q := wfcq.New[int](nil)
			s.parallel(b, func(_ *rcu.Reader, i int) {
				q.Enqueue(i)
			})
		}},
		{"lfq-enqueue-dequeue", func(b *testing.B) {
			q := lfq.New[int]()
			s.parallel(b, func(_ *rcu.Reader, i int) {
				q.Enqueue(i)
				q.Dequeue()
			})
		}},
		{"wfstack-push-pop", func(b *testing.B) {
			st := stack.NewWfStack[int](nil)
			s.parallel(b, func(_ *rcu.Reader, i int) {
				st.Push(i)
				st.Pop()
			})
		}},
		{"lfstack-push-pop", func(b *testing.B) {
			st := stack.NewLfStack[int]()
			s.parallel(b, func(_ *rcu.Reader, i int) {
				st.Push(i)
				st.Pop()
			})
		}},
	}
}
