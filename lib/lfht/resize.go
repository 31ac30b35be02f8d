package lfht

import (
	"fmt"

	"github.com/ValentinKolb/urcu/lib/rcu"
	"github.com/ValentinKolb/urcu/lib/util"
)

// --------------------------------------------------------------------------
// Resize policy
// --------------------------------------------------------------------------

// targetSize returns the bucket count the table should have for count nodes
func (t *Table[K, V]) targetSize(count int64, size uint64) uint64 {
	if count < 0 {
		count = 0
	}

	switch {
	case float64(count) > float64(size)*t.opts.GrowLoadFactor:
		return t.opts.clamp(util.NextPowerOfTwo(uint64(count)))
	case float64(count) < float64(size)*t.opts.ShrinkLoadFactor:
		if target := t.opts.clamp(util.NextPowerOfTwo(uint64(count))); target < size {
			return target
		}
	}
	return size
}

// needsResize reports whether the current load crosses a resize threshold
func (t *Table[K, V]) needsResize() bool {
	size := t.Size()
	return t.targetSize(t.Count(), size) != size
}

// checkResize starts the resize worker if automatic resizing is enabled and needed
func (t *Table[K, V]) checkResize() {
	if !t.opts.AutoResize || t.resizing.Load() || !t.needsResize() {
		return
	}

	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if t.closed.Load() || !t.resizing.CompareAndSwap(false, true) {
		return
	}

	t.workers.Add(1)
	go t.resizeWorker()
}

// resizeWorker resizes until the load is within the thresholds. The worker clears the
// resizing flag before it exits and takes over again if a resize was requested meanwhile.
func (t *Table[K, V]) resizeWorker() {
	defer t.workers.Done()

	r, err := t.domain.Register()
	if err != nil {
		plog.Warningf("table %s: resize worker could not register: %v", t.opts.Name, err)
		t.resizing.Store(false)
		return
	}
	defer r.Unregister()

	for {
		for !t.closed.Load() {
			size := t.Size()
			target := t.targetSize(t.Count(), size)
			if target == size {
				break
			}
			t.resize(r, target)
		}

		t.resizing.Store(false)

		// a checkResize that saw the flag set may have skipped starting a worker
		if t.closed.Load() || !t.needsResize() || !t.resizing.CompareAndSwap(false, true) {
			return
		}
	}
}

// Resize sets the number of buckets to size (rounded up to a power of two and clamped to
// MinSize and MaxSize) and waits until the resize is done.
//
// Thread-safety: This method is thread-safe. Must not be called inside a read-side critical
// section (a QSBR caller with a registered reader has to be offline).
func (t *Table[K, V]) Resize(size uint64) error {
	if t.closed.Load() {
		return fmt.Errorf("lfht: resize of closed table %s", t.opts.Name)
	}

	r, err := t.domain.Register()
	if err != nil {
		return fmt.Errorf("lfht: resize of table %s: %w", t.opts.Name, err)
	}
	defer r.Unregister()

	t.resize(r, t.opts.clamp(util.NextPowerOfTwo(size)))
	return nil
}

// Close waits for a running resize worker and disables automatic resizing.
// The table stays usable.
func (t *Table[K, V]) Close() {
	t.lifecycleMu.Lock()
	t.closed.Store(true)
	t.lifecycleMu.Unlock()

	t.workers.Wait()
}

// --------------------------------------------------------------------------
// Grow and shrink
// --------------------------------------------------------------------------

// resize grows or shrinks the bucket array to target. r is a reader of the calling goroutine
// that is outside of any critical section.
func (t *Table[K, V]) resize(r *rcu.Reader, target uint64) {
	// the resizer holding the lock may wait for a grace period, which must not wait for us
	r.Offline()
	t.resizeMu.Lock()
	r.Online()
	defer t.resizeMu.Unlock()

	old := t.table.Load()
	switch {
	case target > old.size:
		t.grow(r, old, target)
		t.grows.Inc()
	case target < old.size:
		t.shrink(r, old, target)
		t.shrinks.Inc()
	default:
		return
	}

	plog.Debugf("table %s resized from %d to %d buckets (%d nodes)", t.opts.Name, old.size, target, t.Count())
}

// grow inserts the sentinels of the new buckets in increasing index order (the parent of a
// bucket always has a smaller index) and then publishes the larger array.
func (t *Table[K, V]) grow(r *rcu.Reader, old *bucketTable[K, V], target uint64) {
	buckets := make([]*Node[K, V], target)
	copy(buckets, old.buckets)

	for i := old.size; i < target; i++ {
		s := newSentinel[K, V](i)

		r.ReadLock()
		insertSentinel(buckets[parentIndex(i)], s)
		r.ReadUnlock()
		r.QuiescentState()

		buckets[i] = s
	}

	t.table.Store(&bucketTable[K, V]{size: target, buckets: buckets})
}

// shrink publishes the smaller array, waits until no goroutine can still use the old one and
// then removes the sentinels of the dropped buckets in decreasing index order.
func (t *Table[K, V]) shrink(r *rcu.Reader, old *bucketTable[K, V], target uint64) {
	t.table.Store(&bucketTable[K, V]{size: target, buckets: old.buckets[:target:target]})

	r.Synchronize()

	for i := old.size - 1; i >= target; i-- {
		s := old.buckets[i]

		r.ReadLock()
		for {
			l := s.link.Load()
			if s.link.CompareAndSwap(l, &link[K, V]{next: l.next, marked: true}) {
				break
			}
		}
		for {
			if _, ok := search(old.buckets[i&(target-1)], s.soKey, true); ok {
				break
			}
		}
		r.ReadUnlock()
		r.QuiescentState()
	}
}
