/*
Package rcu implements user-space Read-Copy-Update: grace-period detection for lock-free readers
and deferred execution of reclamation callbacks.

# Overview

Readers access shared data inside read-side critical sections without taking locks. Updaters
unlink data from shared structures and then wait for a grace period, after which no reader can
still hold a reference obtained before the unlink. Only then is the unlinked data released.

	d := rcu.NewDomain(nil)
	defer d.Close()

	r, _ := d.Register() // one Reader per goroutine
	defer r.Unregister()

	r.ReadLock()
	p := shared.Load() // p stays valid until ReadUnlock
	r.ReadUnlock()

	old := shared.Swap(newValue)
	d.Synchronize() // every reader that could have seen old has left its critical section
	release(old)

# Grace periods

The domain holds a global generation counter. A reader publishes the generation it observed when
it entered its outermost critical section, and publishes zero when it leaves. Synchronize advances
the generation and waits until every registered reader either published zero or a generation at
least as new as the advanced one. Readers that entered later can not have seen the unlinked data.

Concurrent calls to Synchronize share grace periods: a caller returns without waiting on its own
if a grace period that started after the call was made has completed in the meantime.

# Flavors

  - FlavorMemb (default): ReadLock and ReadUnlock publish the reader state. Readers that are
    not inside a critical section never delay a grace period.
  - FlavorQSBR: an online reader is implicitly inside a critical section. ReadLock and ReadUnlock
    only track nesting (free on the fast path). Readers must call QuiescentState periodically
    or go Offline, otherwise grace periods never complete.

Offline readers are ignored by grace periods in both flavors.

# Deferred reclamation

A Reclaimer queues callbacks with CallRCU and invokes them after a grace period, in FIFO order,
from a worker goroutine. Barrier waits until every callback queued before the call was invoked.
Each Domain lazily creates a default reclaimer for Domain.CallRCU and Domain.Barrier.

Since Go is garbage collected, unlinked memory is never freed while referenced. Callbacks are
used to release other resources (returning objects to pools, closing handles, accounting) and
must still only run after the grace period.

# Debug mode

With Options.Debug set, misuse of the API (unbalanced ReadUnlock, ReadLock while offline,
going offline inside a critical section, use after Unregister) panics with a descriptive message.
Without it these checks are skipped.

# Thread-safety

A Reader belongs to the goroutine that registered it and must not be shared. All Domain and
Reclaimer methods can be called concurrently. Synchronize and Barrier must not be called from
inside a read-side critical section or from a reclamation callback, this deadlocks.
*/
package rcu
