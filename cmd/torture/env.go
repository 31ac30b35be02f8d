package torture

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/urcu/lib/common"
	"github.com/ValentinKolb/urcu/lib/rcu"
	gometrics "github.com/rcrowley/go-metrics"
)

// item is the payload published to readers. It is poisoned once a grace period after its
// removal has elapsed; a reader that observes a poisoned item found a grace period violation.
type item struct {
	key      uint64
	seq      uint64
	poisoned atomic.Bool
}

// env bundles the domain and the meters of one workload
type env struct {
	name   string
	conf   *common.Config
	domain *rcu.Domain

	reads      gometrics.Meter
	writes     gometrics.Meter
	violations gometrics.Counter
	retired    gometrics.Counter
	reclaimed  gometrics.Counter
	syncs      gometrics.Timer
	barriers   gometrics.Timer

	seq atomic.Uint64
}

func newEnv(name string, conf *common.Config, reg gometrics.Registry) (*env, error) {
	opts, err := conf.DomainOptions("torture-" + name)
	if err != nil {
		return nil, err
	}

	metric := func(m string) string { return name + "." + m }
	return &env{
		name:       name,
		conf:       conf,
		domain:     rcu.NewDomain(opts),
		reads:      gometrics.GetOrRegisterMeter(metric("reads"), reg),
		writes:     gometrics.GetOrRegisterMeter(metric("writes"), reg),
		violations: gometrics.GetOrRegisterCounter(metric("violations"), reg),
		retired:    gometrics.GetOrRegisterCounter(metric("retired"), reg),
		reclaimed:  gometrics.GetOrRegisterCounter(metric("reclaimed"), reg),
		syncs:      gometrics.GetOrRegisterTimer(metric("synchronize"), reg),
		barriers:   gometrics.GetOrRegisterTimer(metric("barrier"), reg),
	}, nil
}

func (e *env) newItem(key uint64) *item {
	return &item{key: key, seq: e.seq.Add(1)}
}

// check records a violation if a reader can still reach a reclaimed item
func (e *env) check(it *item) {
	if it.poisoned.Load() {
		e.violations.Inc(1)
		plog.Errorf("%s: reader observed reclaimed item (key %d, seq %d)", e.name, it.key, it.seq)
	}
}

// retire poisons it after a grace period
func (e *env) retire(it *item) {
	e.retired.Inc(1)
	err := e.domain.CallRCU(func() {
		it.poisoned.Store(true)
		e.reclaimed.Inc(1)
	})
	if err != nil {
		plog.Errorf("%s: could not queue callback: %v", e.name, err)
		e.violations.Inc(1)
	}
}

// retireSync waits for a grace period on behalf of r and poisons it directly
func (e *env) retireSync(r *rcu.Reader, it *item) {
	e.retired.Inc(1)
	e.syncs.Time(r.Synchronize)
	it.poisoned.Store(true)
	e.reclaimed.Inc(1)
}

// spawn starts n registered goroutines that call fn until ctx is done. The reader reports a
// quiescent state after every call.
func (e *env) spawn(ctx context.Context, wg *sync.WaitGroup, n int, fn func(r *rcu.Reader, rnd *rand.Rand)) {
	for i := 0; i < n; i++ {
		r, err := e.domain.Register()
		if err != nil {
			plog.Errorf("%s: could not register reader: %v", e.name, err)
			e.violations.Inc(1)
			return
		}

		seed := time.Now().UnixNano() + int64(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer r.Unregister()

			rnd := rand.New(rand.NewSource(seed))
			for ctx.Err() == nil {
				fn(r, rnd)
				r.QuiescentState()
			}
		}()
	}
}

// barrierLoop waits for all queued callbacks periodically. Without a reclaimer worker this
// is the only place callbacks run.
func (e *env) barrierLoop(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.barriers.Time(e.domain.Barrier)
			}
		}
	}()
}

// finish closes the domain (running all pending callbacks) and checks that every retired
// item was reclaimed exactly once
func (e *env) finish() {
	e.domain.Close()

	if retired, reclaimed := e.retired.Count(), e.reclaimed.Count(); retired != reclaimed {
		plog.Errorf("%s: %d items retired but %d reclaimed", e.name, retired, reclaimed)
		e.violations.Inc(1)
	}
}
