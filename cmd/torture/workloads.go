package torture

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/urcu/lib/lfht"
	"github.com/ValentinKolb/urcu/lib/lfq"
	"github.com/ValentinKolb/urcu/lib/rcu"
	"github.com/ValentinKolb/urcu/lib/rculist"
	"github.com/ValentinKolb/urcu/lib/stack"
	"github.com/ValentinKolb/urcu/lib/wfcq"
)

// workload runs until ctx is done and reports through e. It returns a short summary.
type workload func(ctx context.Context, e *env) string

var workloads = []struct {
	name string
	run  workload
}{
	{"list", runList},
	{"lfht", runTable},
	{"wfcq", runWfcq},
	{"lfq", runLfq},
	{"wfstack", func(ctx context.Context, e *env) string {
		return runStack(ctx, e, stack.NewWfStack[int](nil))
	}},
	{"lfstack", func(ctx context.Context, e *env) string {
		return runStack(ctx, e, stack.NewLfStack[int]())
	}},
}

// every n-th update waits for the grace period itself instead of queuing a callback
const syncEvery = 16

// ---- RCU list ----

func runList(ctx context.Context, e *env) string {
	l := rculist.New[*item]()
	size := max(e.conf.KeySpread, 1)
	for i := 0; i < size; i++ {
		l.PushBack(e.newItem(uint64(i)))
	}

	var wg sync.WaitGroup
	e.barrierLoop(ctx, &wg)

	e.spawn(ctx, &wg, e.conf.Readers, func(r *rcu.Reader, _ *rand.Rand) {
		r.ReadLock()
		for it := range l.Values() {
			e.check(it)
		}
		r.ReadUnlock()
		e.reads.Mark(1)
	})

	e.spawn(ctx, &wg, e.conf.Writers, func(r *rcu.Reader, rnd *rand.Rand) {
		// find a victim inside a critical section
		r.ReadLock()
		var victim *rculist.Node[*item]
		skip := rnd.Intn(size)
		for n := range l.All() {
			victim = n
			if skip == 0 {
				break
			}
			skip--
		}
		r.ReadUnlock()

		if victim == nil {
			l.PushBack(e.newItem(uint64(rnd.Intn(size))))
			e.writes.Mark(1)
			return
		}

		old := victim.Value()
		if rnd.Intn(2) == 0 {
			if _, ok := l.Replace(victim, e.newItem(old.key)); !ok {
				return
			}
		} else {
			if !l.Remove(victim) {
				return
			}
			l.PushBack(e.newItem(old.key))
		}
		e.writes.Mark(1)

		if old.seq%syncEvery == 0 {
			e.retireSync(r, old)
		} else {
			e.retire(old)
		}
	})

	wg.Wait()
	return ""
}

// ---- Lock-free hash table ----

func runTable(ctx context.Context, e *env) string {
	tbl := lfht.New[uint64, *item](e.domain, e.conf.TableOptions("torture"))
	keys := max(e.conf.KeySpread, 1)

	// prefill half of the key space
	setup, err := e.domain.Register()
	if err != nil {
		plog.Errorf("%s: could not register reader: %v", e.name, err)
		e.violations.Inc(1)
		return ""
	}
	setup.ReadLock()
	for k := 0; k < keys; k += 2 {
		tbl.Add(uint64(k), e.newItem(uint64(k)))
	}
	setup.ReadUnlock()
	setup.Unregister()

	var wg sync.WaitGroup
	e.barrierLoop(ctx, &wg)

	e.spawn(ctx, &wg, e.conf.Readers, func(r *rcu.Reader, rnd *rand.Rand) {
		key := uint64(rnd.Intn(keys))

		r.ReadLock()
		for n := range tbl.Lookup(key) {
			it := n.Value()
			e.check(it)
			if it.key != key {
				plog.Errorf("%s: lookup of key %d returned item with key %d", e.name, key, it.key)
				e.violations.Inc(1)
			}
		}
		r.ReadUnlock()
		e.reads.Mark(1)
	})

	e.spawn(ctx, &wg, e.conf.Writers, func(r *rcu.Reader, rnd *rand.Rand) {
		key := uint64(rnd.Intn(keys))
		var old *item

		r.ReadLock()
		switch rnd.Intn(3) {
		case 0:
			if _, replaced := tbl.AddReplace(key, e.newItem(key)); replaced != nil {
				old = replaced.Value()
			}
		case 1:
			tbl.AddUnique(key, e.newItem(key))
		default:
			if n, ok := tbl.LookupFirst(key); ok && tbl.Remove(n) == nil {
				old = n.Value()
			}
		}
		r.ReadUnlock()
		e.writes.Mark(1)

		if old == nil {
			return
		}
		if old.seq%syncEvery == 0 {
			e.retireSync(r, old)
		} else {
			e.retire(old)
		}
	})

	// explicit resizes when the table does not resize on its own
	if !e.conf.TableAutoResize {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sizes := []uint64{e.conf.TableInitialSize, e.conf.TableInitialSize * 8}
			for i := 0; ctx.Err() == nil; i++ {
				if err := tbl.Resize(sizes[i%2]); err != nil {
					plog.Warningf("%s: %v", e.name, err)
					return
				}
			}
		}()
	}

	wg.Wait()
	tbl.Close()

	r, err := e.domain.Register()
	if err != nil {
		plog.Errorf("%s: could not register reader: %v", e.name, err)
		e.violations.Inc(1)
		return ""
	}
	r.ReadLock()
	stats := tbl.Stats()
	r.ReadUnlock()
	r.Unregister()

	if int64(stats.Nodes) != tbl.Count() {
		plog.Errorf("%s: table count %d but %d nodes reachable", e.name, tbl.Count(), stats.Nodes)
		e.violations.Inc(1)
	}
	return stats.String()
}

// ---- Queues ----

type token struct {
	producer int
	seq      int
}

// orderCheck verifies that the values of every producer arrive in order
type orderCheck struct {
	e        *env
	last     []int
	consumed int64
}

func newOrderCheck(e *env, producers int) *orderCheck {
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	return &orderCheck{e: e, last: last}
}

func (c *orderCheck) consume(t token) {
	if t.seq <= c.last[t.producer] {
		plog.Errorf("%s: producer %d: seq %d after %d", c.e.name, t.producer, t.seq, c.last[t.producer])
		c.e.violations.Inc(1)
	}
	c.last[t.producer] = t.seq
	c.consumed++
	c.e.reads.Mark(1)
}

// produce starts the producers. Each producer enqueues increasing sequence numbers until
// ctx is done. The returned channel is closed once all producers returned.
func produce(ctx context.Context, e *env, producers int, enqueue func(token)) <-chan struct{} {
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seq := 0; ctx.Err() == nil; seq++ {
				enqueue(token{producer: p, seq: seq})
				e.writes.Mark(1)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func (e *env) checkConservation(produced, consumed int64) {
	if produced != consumed {
		plog.Errorf("%s: %d values produced but %d consumed", e.name, produced, consumed)
		e.violations.Inc(1)
	}
}

func runWfcq(ctx context.Context, e *env) string {
	producers := max(e.conf.Writers, 1)
	q := wfcq.New[token](&wfcq.Options{Backoff: wfcq.DefaultOptions().Backoff, Debug: e.conf.Debug})
	local := wfcq.New[token](nil)
	check := newOrderCheck(e, producers)

	done := produce(ctx, e, producers, func(t token) { q.Enqueue(t) })

	// single consumer: mostly non-blocking dequeues, every 64th round a splice
	for round := 0; ; round++ {
		if round%64 == 0 {
			local.SpliceBlocking(q)
			for t, ok := local.DequeueBlocking(); ok; t, ok = local.DequeueBlocking() {
				check.consume(t)
			}
			continue
		}

		t, ok, err := q.DequeueNonblocking()
		if errors.Is(err, wfcq.ErrWouldBlock) {
			runtime.Gosched()
			continue
		}
		if ok {
			check.consume(t)
			continue
		}

		select {
		case <-done:
		default:
			runtime.Gosched()
			continue
		}

		// all producers returned: drain what is left
		for t, ok := q.DequeueBlocking(); ok; t, ok = q.DequeueBlocking() {
			check.consume(t)
		}
		break
	}

	e.checkConservation(e.writes.Count(), check.consumed)
	return ""
}

func runLfq(ctx context.Context, e *env) string {
	producers := max(e.conf.Writers, 1)
	consumers := max(e.conf.Readers, 1)
	q := lfq.New[token]()

	done := produce(ctx, e, producers, func(t token) { q.Enqueue(t) })
	go func() {
		<-done
		q.Close()
	}()

	// the queue is linearizable, so every consumer sees each producer's values in order
	var wg sync.WaitGroup
	checks := make([]*orderCheck, consumers)
	for i := range checks {
		checks[i] = newOrderCheck(e, producers)
		wg.Add(1)
		go func(check *orderCheck) {
			defer wg.Done()
			for {
				t, err := q.DequeueWait(context.Background())
				if err != nil {
					if !errors.Is(err, lfq.ErrClosed) {
						plog.Errorf("%s: %v", e.name, err)
						e.violations.Inc(1)
					}
					return
				}
				check.consume(t)
			}
		}(checks[i])
	}
	wg.Wait()

	var consumed int64
	for _, check := range checks {
		consumed += check.consumed
	}
	e.checkConservation(e.writes.Count(), consumed)
	return ""
}

// ---- Stacks ----

func runStack(ctx context.Context, e *env, s stack.Stack[int]) string {
	producers := max(e.conf.Writers, 1)
	consumers := max(e.conf.Readers, 1)

	var pushed, pushedSum, popped, poppedSum atomic.Int64
	done := produce(ctx, e, producers, func(t token) {
		v := t.producer + producers*(t.seq%1024)
		s.Push(v)
		pushed.Add(1)
		pushedSum.Add(int64(v))
	})

	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func(popAll bool) {
			defer wg.Done()
			for {
				if popAll {
					var n int64
					for v := range s.PopAll().All() {
						n++
						poppedSum.Add(int64(v))
					}
					popped.Add(n)
					e.reads.Mark(n)
				} else if v, ok := s.Pop(); ok {
					popped.Add(1)
					poppedSum.Add(int64(v))
					e.reads.Mark(1)
					continue
				}

				select {
				case <-done:
					if s.IsEmpty() {
						return
					}
				default:
					runtime.Gosched()
				}
			}
		}(i%2 == 1)
	}
	wg.Wait()

	e.checkConservation(pushed.Load(), popped.Load())
	if pushedSum.Load() != poppedSum.Load() {
		plog.Errorf("%s: sum of pushed values %d but popped %d", e.name, pushedSum.Load(), poppedSum.Load())
		e.violations.Inc(1)
	}
	return ""
}
