package rcu

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/urcu/lib/stack"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sys/cpu"
)

var plog = logger.GetLogger("rcu")

// ErrDomainClosed is returned when a reader registers with (or a callback is queued on) a closed domain
var ErrDomainClosed = errors.New("rcu: domain closed")

// Flavor selects how readers publish their state
type Flavor int

const (
	FlavorMemb Flavor = iota // read lock and unlock publish the reader state
	FlavorQSBR               // online readers are inside a critical section until they report a quiescent state
)

func (f Flavor) String() string {
	switch f {
	case FlavorMemb:
		return "memb"
	case FlavorQSBR:
		return "qsbr"
	default:
		return fmt.Sprintf("Flavor(%d)", int(f))
	}
}

// ParseFlavor converts a flavor name ("memb" or "qsbr") to a Flavor
func ParseFlavor(s string) (Flavor, error) {
	switch s {
	case "memb", "":
		return FlavorMemb, nil
	case "qsbr":
		return FlavorQSBR, nil
	default:
		return 0, fmt.Errorf("invalid rcu flavor: %s. must be one of memb, qsbr", s)
	}
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a Domain
type Options struct {
	Name   string // used as metrics label
	Flavor Flavor
	Debug  bool // panic on API misuse

	// grace period polling: each reader is polled SyncSpins times (yielding in between),
	// after that the poller sleeps, starting with SyncSleepMin and doubling up to SyncSleepMax
	SyncSpins    int
	SyncSleepMin time.Duration
	SyncSleepMax time.Duration

	// a warning is logged if a grace period takes longer than this (0 = never)
	SlowGracePeriod time.Duration

	// options of the default reclaimer (see Domain.CallRCU), nil = DefaultReclaimerOptions()
	Reclaimer *ReclaimerOptions
}

// DefaultOptions returns the default domain options
func DefaultOptions() *Options {
	return &Options{
		Name:            "default",
		Flavor:          FlavorMemb,
		Debug:           false,
		SyncSpins:       100,
		SyncSleepMin:    10 * time.Microsecond,
		SyncSleepMax:    10 * time.Millisecond,
		SlowGracePeriod: time.Second,
		Reclaimer:       nil,
	}
}

// --------------------------------------------------------------------------
// Domain
// --------------------------------------------------------------------------

// Domain tracks a set of readers and detects grace periods for them.
// Independent domains do not wait for each other's readers.
type Domain struct {
	// generation counter, only advanced with gpMu held
	gen atomic.Uint64
	_   cpu.CacheLinePad

	gpMu      sync.Mutex
	completed atomic.Uint64 // last generation whose grace period finished

	readers *xsync.MapOf[uint64, *Reader]
	free    *stack.LfStack[*Reader] // unregistered records, reused by Register
	nextID  atomic.Uint64
	closed  atomic.Bool

	opts Options

	reclaimerOnce sync.Once
	reclaimer     *Reclaimer

	metrics          *metrics.Set
	gracePeriods     *metrics.Counter
	sharedWaits      *metrics.Counter
	gracePeriodTimes *metrics.Histogram
}

// NewDomain creates a new domain with the specified options (optional)
func NewDomain(opts *Options) *Domain {
	if opts == nil {
		opts = DefaultOptions()
	}

	d := &Domain{
		readers: xsync.NewMapOf[uint64, *Reader](),
		free:    stack.NewLfStack[*Reader](),
		opts:    *opts,
		metrics: metrics.NewSet(),
	}
	if d.opts.SyncSleepMin <= 0 {
		d.opts.SyncSleepMin = time.Microsecond
	}
	if d.opts.SyncSleepMax < d.opts.SyncSleepMin {
		d.opts.SyncSleepMax = d.opts.SyncSleepMin
	}

	// generation 0 is reserved for "quiescent"
	d.gen.Store(1)

	label := fmt.Sprintf(`{domain=%q}`, d.opts.Name)
	d.gracePeriods = d.metrics.NewCounter("urcu_grace_periods_total" + label)
	d.sharedWaits = d.metrics.NewCounter("urcu_grace_periods_shared_total" + label)
	d.gracePeriodTimes = d.metrics.NewHistogram("urcu_grace_period_duration_seconds" + label)
	d.metrics.NewGauge("urcu_readers"+label, func() float64 {
		return float64(d.readers.Size())
	})
	d.metrics.NewGauge("urcu_generation"+label, func() float64 {
		return float64(d.gen.Load())
	})

	return d
}

// Flavor returns the flavor of the domain
func (d *Domain) Flavor() Flavor {
	return d.opts.Flavor
}

// Generation returns the current grace-period generation
func (d *Domain) Generation() uint64 {
	return d.gen.Load()
}

// CompletedGeneration returns the generation of the last completed grace period.
// A callback tagged with generation g may run once CompletedGeneration() >= g.
func (d *Domain) CompletedGeneration() uint64 {
	return d.completed.Load()
}

// NumReaders returns the number of registered readers
func (d *Domain) NumReaders() int {
	return d.readers.Size()
}

// Metrics returns the metrics set of the domain
func (d *Domain) Metrics() *metrics.Set {
	return d.metrics
}

// Register creates a reader handle for the calling goroutine. Records released by
// Reader.Unregister are reused.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *Domain) Register() (*Reader, error) {
	if d.closed.Load() {
		return nil, ErrDomainClosed
	}

	r, ok := d.free.Pop()
	if !ok {
		r = &Reader{domain: d, id: d.nextID.Add(1)}
	}

	r.nesting = 0
	r.online = true
	if d.opts.Flavor == FlavorQSBR {
		r.ctr.Store(d.gen.Load())
	} else {
		r.ctr.Store(0)
	}
	r.registered.Store(true)

	d.readers.Store(r.id, r)
	return r, nil
}

// Synchronize waits until a full grace period has elapsed: every reader that was inside a
// read-side critical section when Synchronize was called has left it.
//
// Thread-safety: This method is thread-safe. Must not be called inside a read-side critical
// section (or by an online QSBR reader, see Reader.Synchronize).
func (d *Domain) Synchronize() {
	start := time.Now()
	snapshot := d.gen.Load()

	d.gpMu.Lock()
	defer d.gpMu.Unlock()

	// a grace period that started after our snapshot has already completed
	if d.completed.Load() > snapshot {
		d.sharedWaits.Inc()
		return
	}

	target := d.gen.Add(1)

	d.readers.Range(func(_ uint64, r *Reader) bool {
		d.waitForReader(r, target)
		return true
	})

	d.completed.Store(target)
	d.gracePeriods.Inc()
	d.gracePeriodTimes.UpdateDuration(start)

	if elapsed := time.Since(start); d.opts.SlowGracePeriod > 0 && elapsed > d.opts.SlowGracePeriod {
		plog.Warningf("slow grace period in domain %s: generation %d took %v", d.opts.Name, target, elapsed)
	}
}

// waitForReader blocks until r is quiescent or has observed target
func (d *Domain) waitForReader(r *Reader, target uint64) {
	sleep := d.opts.SyncSleepMin

	for attempt := 0; ; attempt++ {
		if c := r.ctr.Load(); c == 0 || c >= target {
			return
		}

		if attempt < d.opts.SyncSpins {
			runtime.Gosched()
			continue
		}

		time.Sleep(sleep)
		if sleep *= 2; sleep > d.opts.SyncSleepMax {
			sleep = d.opts.SyncSleepMax
		}
	}
}

// Reclaimer returns the default reclaimer of the domain, creating it on first use
func (d *Domain) Reclaimer() *Reclaimer {
	d.reclaimerOnce.Do(func() {
		opts := d.opts.Reclaimer
		if opts == nil {
			opts = DefaultReclaimerOptions()
			opts.Name = d.opts.Name
			opts.Debug = d.opts.Debug
		}
		d.reclaimer = NewReclaimer(d, opts)
	})
	return d.reclaimer
}

// CallRCU queues fn on the default reclaimer. fn runs after a grace period.
// Returns ErrDomainClosed if the domain was closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *Domain) CallRCU(fn func()) error {
	if d.closed.Load() {
		return ErrDomainClosed
	}
	if err := d.Reclaimer().CallRCU(fn); err != nil {
		return ErrDomainClosed
	}
	return nil
}

// Barrier waits until every callback queued on the default reclaimer before the call has run
//
// Thread-safety: This method is thread-safe. Must not be called from a callback.
func (d *Domain) Barrier() {
	d.Reclaimer().Barrier()
}

// Close rejects new registrations and stops the default reclaimer after running all pending
// callbacks. Registered readers stay valid.
func (d *Domain) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}

	d.Reclaimer().Close()
	plog.Debugf("domain %s closed at generation %d (%d readers registered)",
		d.opts.Name, d.gen.Load(), d.readers.Size())
}
