package util

import (
	"runtime"
	"time"
)

// --------------------------------------------------------------------------
// Backoff strategy
// --------------------------------------------------------------------------

// Backoff configures how a goroutine waits for another goroutine to finish a short step
// (e.g. a producer that already swapped the tail but has not linked its node yet).
//
// A wait runs through three phases:
//  1. Spins: busy retries without giving up the processor
//  2. Yields: retries separated by runtime.Gosched()
//  3. Sleep: retries separated by a sleep (only if Sleep > 0, otherwise phase 2 never ends)
type Backoff struct {
	Spins  int           // busy retries before yielding
	Yields int           // yielding retries before sleeping
	Sleep  time.Duration // sleep between retries once spins and yields are used up (0 = never sleep)
}

// DefaultBackoff returns the backoff used when a container is created without options.
// The values are tuned for the short producer gaps of the wait-free structures.
func DefaultBackoff() Backoff {
	return Backoff{
		Spins:  64,
		Yields: 1 << 10,
		Sleep:  10 * time.Microsecond,
	}
}

// Waiter returns a fresh waiter for a single wait loop.
func (b Backoff) Waiter() Waiter {
	return Waiter{b: b}
}

// Waiter tracks the progress of one wait loop.
//
// Thread-safety: A Waiter must only be used by the goroutine that created it.
type Waiter struct {
	b       Backoff
	attempt int
}

// Wait blocks for one step of the backoff strategy.
func (w *Waiter) Wait() {
	w.attempt++

	switch {
	case w.attempt <= w.b.Spins:
		// busy retry
	case w.b.Sleep > 0 && w.attempt > w.b.Spins+w.b.Yields:
		time.Sleep(w.b.Sleep)
	default:
		runtime.Gosched()
	}
}

// Attempts returns how often Wait was called.
func (w *Waiter) Attempts() int {
	return w.attempt
}

// Reset starts the strategy over (e.g. after progress was made).
func (w *Waiter) Reset() {
	w.attempt = 0
}
