package rcu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/urcu/lib/wfcq"
	"github.com/lni/dragonboat/v4/logger"
)

var rlog = logger.GetLogger("reclaim")

// ErrReclaimerClosed is returned by CallRCU after the reclaimer was closed. The caller can fall
// back to Synchronize followed by a direct call.
var ErrReclaimerClosed = errors.New("rcu: reclaimer closed")

// ReclaimerOptions configures a Reclaimer
type ReclaimerOptions struct {
	Name string // used as metrics label

	// Worker starts a goroutine that invokes callbacks in the background. Without it the
	// reclaimer runs in degraded mode: callbacks only run on Drain, Barrier or Close.
	Worker bool

	// WakeInterval is the longest time an idle worker sleeps before checking the queue again
	WakeInterval time.Duration

	// Debug panics if two goroutines consume the callback queue at the same time
	Debug bool
}

// DefaultReclaimerOptions returns the default reclaimer options
func DefaultReclaimerOptions() *ReclaimerOptions {
	return &ReclaimerOptions{
		Name:         "default",
		Worker:       true,
		WakeInterval: 100 * time.Millisecond,
		Debug:        false,
	}
}

// callback is an entry of the reclamation queue. A nil fn marks a barrier.
type callback struct {
	fn      func()
	gen     uint64 // may run once the domain completed this generation
	barrier chan struct{}
}

// --------------------------------------------------------------------------
// Reclaimer
// --------------------------------------------------------------------------

// Reclaimer defers callbacks until a grace period of its domain has elapsed.
// Callbacks run in the order they were queued, each exactly once.
type Reclaimer struct {
	domain *Domain
	opts   ReclaimerOptions

	queue *wfcq.Queue[callback] // intake, many producers
	batch *wfcq.Queue[callback] // consumer side, owned by whoever holds consumeMu
	buf   []callback

	// CallRCU holds the read side while enqueueing so Close can not miss a callback
	closeMu   sync.RWMutex
	closed    atomic.Bool
	consumeMu sync.Mutex

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	metrics   *metrics.Set
	enqueued  *metrics.Counter
	invoked   *metrics.Counter
	batches   *metrics.Counter
	skipped   *metrics.Counter
	batchSize *metrics.Histogram
}

// NewReclaimer creates a reclaimer for the domain with the specified options (optional).
// If opts.Worker is set, the worker goroutine is started immediately.
func NewReclaimer(d *Domain, opts *ReclaimerOptions) *Reclaimer {
	if opts == nil {
		opts = DefaultReclaimerOptions()
	}

	queueOpts := wfcq.DefaultOptions()
	queueOpts.Debug = opts.Debug

	r := &Reclaimer{
		domain:  d,
		opts:    *opts,
		queue:   wfcq.New[callback](queueOpts),
		batch:   wfcq.New[callback](queueOpts),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		metrics: metrics.NewSet(),
	}
	if r.opts.WakeInterval <= 0 {
		r.opts.WakeInterval = DefaultReclaimerOptions().WakeInterval
	}

	label := fmt.Sprintf(`{reclaimer=%q}`, r.opts.Name)
	r.enqueued = r.metrics.NewCounter("urcu_callbacks_enqueued_total" + label)
	r.invoked = r.metrics.NewCounter("urcu_callbacks_invoked_total" + label)
	r.batches = r.metrics.NewCounter("urcu_callback_batches_total" + label)
	r.skipped = r.metrics.NewCounter("urcu_callback_batches_without_wait_total" + label)
	r.batchSize = r.metrics.NewHistogram("urcu_callback_batch_size" + label)
	r.metrics.NewGauge("urcu_callbacks_pending"+label, func() float64 {
		return float64(r.Pending())
	})

	if r.opts.Worker {
		go r.run()
	} else {
		close(r.done)
	}

	return r
}

// Metrics returns the metrics set of the reclaimer
func (r *Reclaimer) Metrics() *metrics.Set {
	return r.metrics
}

// Pending returns the number of callbacks queued but not yet invoked
func (r *Reclaimer) Pending() uint64 {
	enq, inv := r.enqueued.Get(), r.invoked.Get()
	if inv > enq {
		return 0
	}
	return enq - inv
}

// CallRCU queues fn to be invoked after a grace period that starts after this call.
// Returns ErrReclaimerClosed if the reclaimer was closed, fn is not queued in that case.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Reclaimer) CallRCU(fn func()) error {
	if fn == nil {
		return nil
	}

	r.closeMu.RLock()
	if r.closed.Load() {
		r.closeMu.RUnlock()
		return ErrReclaimerClosed
	}
	r.queue.Enqueue(callback{fn: fn, gen: r.domain.Generation() + 1})
	r.enqueued.Inc()
	r.closeMu.RUnlock()

	r.signal()
	return nil
}

// Barrier waits until every callback queued before the call has been invoked.
// In degraded mode the callbacks are invoked by the calling goroutine.
//
// Thread-safety: This method is thread-safe. Must not be called from a callback.
func (r *Reclaimer) Barrier() {
	if !r.opts.Worker {
		r.Drain()
		return
	}

	marker := make(chan struct{})

	r.closeMu.RLock()
	if r.closed.Load() {
		// Close already ran every callback
		r.closeMu.RUnlock()
		return
	}
	r.queue.Enqueue(callback{barrier: marker})
	r.closeMu.RUnlock()

	r.signal()
	<-marker
}

// Drain invokes every queued callback after waiting for a grace period (if necessary) and
// returns the number of callbacks invoked. In worker mode Drain is equivalent to Barrier and
// returns 0, the callbacks are invoked by the worker.
//
// Thread-safety: This method is thread-safe. Concurrent calls are serialized.
func (r *Reclaimer) Drain() int {
	if r.opts.Worker {
		r.Barrier()
		return 0
	}

	total := 0
	for {
		n := r.processBatch()
		if n == 0 {
			return total
		}
		total += n
	}
}

// Close runs every pending callback and stops the worker. Afterwards CallRCU returns
// ErrReclaimerClosed. Close is idempotent.
func (r *Reclaimer) Close() {
	r.closeMu.Lock()
	if r.closed.Load() {
		r.closeMu.Unlock()
		return
	}
	r.closed.Store(true)
	r.closeMu.Unlock()

	if r.opts.Worker {
		close(r.stop)
		<-r.done
	} else {
		r.Drain()
	}
	rlog.Debugf("reclaimer %s closed after %d callbacks", r.opts.Name, r.invoked.Get())
}

// --------------------------------------------------------------------------
// Worker
// --------------------------------------------------------------------------

func (r *Reclaimer) signal() {
	if !r.opts.Worker {
		return
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reclaimer) run() {
	defer close(r.done)

	timer := time.NewTimer(r.opts.WakeInterval)
	defer timer.Stop()

	for {
		for r.processBatch() > 0 {
		}

		select {
		case <-r.stop:
			// no new callbacks can be queued, run what is left
			for r.processBatch() > 0 {
			}
			return
		case <-r.wake:
		case <-timer.C:
		}
		timer.Reset(r.opts.WakeInterval)
	}
}

// processBatch takes every queued callback, waits for a grace period unless every callback
// is already covered by a completed one and invokes them in order.
// Returns the number of entries processed (callbacks and barriers).
func (r *Reclaimer) processBatch() int {
	r.consumeMu.Lock()
	defer r.consumeMu.Unlock()

	if r.batch.SpliceBlocking(r.queue) == wfcq.SpliceEmpty {
		return 0
	}

	var maxGen uint64
	cbs := r.buf[:0]
	for {
		cb, ok := r.batch.DequeueBlocking()
		if !ok {
			break
		}
		if cb.gen > maxGen {
			maxGen = cb.gen
		}
		cbs = append(cbs, cb)
	}

	if maxGen > r.domain.CompletedGeneration() {
		r.domain.Synchronize()
	} else {
		r.skipped.Inc()
	}

	invoked := 0
	for i := range cbs {
		if cbs[i].barrier != nil {
			close(cbs[i].barrier)
		} else {
			cbs[i].fn()
			r.invoked.Inc()
			invoked++
		}
		cbs[i] = callback{}
	}

	r.buf = cbs[:0]
	r.batches.Inc()
	r.batchSize.Update(float64(invoked))

	return len(cbs)
}
