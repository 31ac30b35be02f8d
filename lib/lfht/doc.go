/*
Package lfht implements a lock-free, resizable hash table protected by RCU.

# Overview

All nodes of the table live in a single linked list sorted by split-order key (the bit reversed
hash). Every bucket of the bucket array points to a sentinel node inside this list. A lookup
hashes the key, picks the sentinel of its bucket and walks the list from there until the
split-order key passes the key of the item.

Because the list order does not depend on the table size, resizing never moves items: growing
inserts new sentinels into the list and publishes a larger bucket array, shrinking publishes a
smaller array and unlinks the sentinels that are no longer referenced.

# Implementation details

Nodes are removed in two steps (Harris list): first the link of the node is marked, which makes
the removal visible and freezes the successor pointer, then the node is unlinked from its
predecessor. Writers that meet a marked node help unlinking it. Links are immutable
{next, marked} pairs that are swapped atomically, so marking and linking never race.

  - Lookups and iterations never write and never restart.
  - Add inserts before existing nodes with the same hash, duplicates are allowed.
  - AddUnique and AddReplace insert at the end of the run of nodes with equal hash, two
    concurrent AddUnique calls for the same key therefore always conflict on the same link.
  - Replace marks the old node and points it to the new node with a single atomic swap. A
    concurrent lookup returns either the old or the new node, never both or none.

The live node count is an approximate striped counter (xsync.Counter). Automatic resizes are
triggered from Add and Remove and executed by a background goroutine that registers its own
reader with the domain. Grow and shrink are mutually exclusive.

# Read-side critical sections

Every operation except Resize and Close must be called inside a read-side critical section of
the table's domain, and nodes returned by the table are only valid until the critical section is
left. A removed node may be handed to a reclaimer (rcu.Domain.CallRCU) to release resources
owned by its value after a grace period.

	r.ReadLock()
	if n, ok := t.LookupFirst("key"); ok {
		use(n.Value())
	}
	r.ReadUnlock()

	r.ReadLock()
	if n, ok := t.LookupFirst("key"); ok && t.Remove(n) == nil {
		d.CallRCU(func() { release(n.Value()) })
	}
	r.ReadUnlock()

Resize and Close wait for grace periods and must not be called inside a critical section.
*/
package lfht
