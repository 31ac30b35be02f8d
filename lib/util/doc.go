// Package util provides small shared helpers for the RCU core and its containers.
//
// The package contains:
//   - backoff: A configurable retry/wait strategy used by spin-waits (stack pop, queue dequeue,
//     grace-period polling). Spinning, yielding and sleeping phases are all tunable.
//   - functions: Seed generation, seeded FNV-1a string hashing, 64-bit integer mixing and
//     power-of-two helpers used by the split-ordered hash table
//   - statistics: Summary and distribution statistics, used to describe hash table chain lengths
//
// None of the helpers allocate on their hot paths and all of them are safe for concurrent use
// unless noted otherwise (a Waiter belongs to a single goroutine).
package util
