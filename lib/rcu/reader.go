package rcu

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Reader is the registration record of one reader goroutine.
//
// Thread-safety: A Reader must only be used by the goroutine that registered it. The fields
// read by grace periods are atomic, all other fields are owned by that goroutine.
type Reader struct {
	// 0 = quiescent or offline, otherwise the generation observed when entering the
	// critical section (memb) or at the last quiescent state (qsbr)
	ctr atomic.Uint64
	_   cpu.CacheLinePad

	qsCount    atomic.Uint64
	registered atomic.Bool

	domain  *Domain
	id      uint64
	nesting int  // owner only
	online  bool // owner only
}

// ID returns the id of the reader record. Ids are reused after Unregister.
func (r *Reader) ID() uint64 {
	return r.id
}

// Domain returns the domain the reader is registered with
func (r *Reader) Domain() *Domain {
	return r.domain
}

// ReadLock enters a read-side critical section. Critical sections nest.
func (r *Reader) ReadLock() {
	if r.nesting == 0 {
		if r.domain.opts.Debug {
			r.assertRegistered("ReadLock")
			if !r.online {
				panic("rcu: ReadLock called by an offline reader")
			}
		}
		if r.domain.opts.Flavor == FlavorMemb {
			r.ctr.Store(r.domain.gen.Load())
		}
	}
	r.nesting++
}

// ReadUnlock leaves a read-side critical section. References obtained inside the outermost
// critical section must not be used after it was left.
func (r *Reader) ReadUnlock() {
	if r.nesting == 0 {
		if r.domain.opts.Debug {
			panic("rcu: ReadUnlock called without matching ReadLock")
		}
		return
	}

	r.nesting--
	if r.nesting == 0 && r.domain.opts.Flavor == FlavorMemb {
		r.ctr.Store(0)
	}
}

// QuiescentState reports that the reader holds no reference obtained before the call.
// A waiting grace period no longer waits for this reader. The nesting level is unchanged.
func (r *Reader) QuiescentState() {
	if r.domain.opts.Debug {
		r.assertRegistered("QuiescentState")
	}

	if r.ctr.Load() != 0 {
		r.ctr.Store(r.domain.gen.Load())
	}
	r.qsCount.Add(1)
}

// Offline marks the reader as not reading shared data (e.g. before blocking for a long time).
// Grace periods ignore offline readers.
func (r *Reader) Offline() {
	if r.domain.opts.Debug {
		r.assertRegistered("Offline")
		if r.nesting > 0 {
			panic("rcu: Offline called inside a read-side critical section")
		}
	}

	r.online = false
	r.ctr.Store(0)
}

// Online reverts Offline
func (r *Reader) Online() {
	if r.domain.opts.Debug {
		r.assertRegistered("Online")
	}

	r.online = true
	if r.domain.opts.Flavor == FlavorQSBR {
		r.ctr.Store(r.domain.gen.Load())
	}
}

// IsOnline reports whether the reader is online
func (r *Reader) IsOnline() bool {
	return r.online
}

// InCriticalSection reports whether grace periods currently wait for this reader
func (r *Reader) InCriticalSection() bool {
	return r.ctr.Load() != 0
}

// QuiescentCount returns how often QuiescentState was called
func (r *Reader) QuiescentCount() uint64 {
	return r.qsCount.Load()
}

// Synchronize waits for a grace period on behalf of this reader. A QSBR reader is taken
// offline for the duration of the wait so it does not wait for itself.
func (r *Reader) Synchronize() {
	if r.nesting > 0 {
		panic("rcu: Synchronize called inside a read-side critical section")
	}

	wasOnline := r.online
	if wasOnline && r.domain.opts.Flavor == FlavorQSBR {
		r.Offline()
		defer r.Online()
	}
	r.domain.Synchronize()
}

// Unregister removes the reader from its domain. Grace periods never wait for it again,
// including a grace period that is currently polling it.
func (r *Reader) Unregister() {
	if r.nesting > 0 && r.domain.opts.Debug {
		panic("rcu: Unregister called inside a read-side critical section")
	}
	if !r.registered.CompareAndSwap(true, false) {
		if r.domain.opts.Debug {
			panic("rcu: Unregister called twice")
		}
		return
	}

	r.nesting = 0
	r.online = false
	r.ctr.Store(0)

	r.domain.readers.Delete(r.id)
	r.domain.free.Push(r)
}

func (r *Reader) assertRegistered(op string) {
	if !r.registered.Load() {
		panic("rcu: " + op + " called on an unregistered reader")
	}
}
