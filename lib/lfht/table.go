package lfht

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/urcu/lib/rcu"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var plog = logger.GetLogger("lfht")

// ErrNotFound is returned when a node that should be removed or replaced was already removed
var ErrNotFound = errors.New("lfht: node not found")

// bucketTable is an immutable snapshot of the bucket array
type bucketTable[K comparable, V any] struct {
	size    uint64
	buckets []*Node[K, V]
}

func (b *bucketTable[K, V]) bucket(hash uint64) *Node[K, V] {
	return b.buckets[hash&(b.size-1)]
}

// Table is a lock-free hash table. Keys may occur multiple times (see Add and AddUnique).
type Table[K comparable, V any] struct {
	domain *rcu.Domain
	opts   Options[K]
	hasher func(K, uint64) uint64

	table atomic.Pointer[bucketTable[K, V]]
	count *xsync.Counter

	// resizing is set while a resize worker runs, resizeMu serializes grow and shrink
	resizing    atomic.Bool
	resizeMu    sync.Mutex
	lifecycleMu sync.Mutex
	workers     sync.WaitGroup
	closed      atomic.Bool

	metrics *metrics.Set
	grows   *metrics.Counter
	shrinks *metrics.Counter
}

// New creates a table whose nodes are protected by the readers of domain d.
// Panics if K is neither a string nor an integer type and no Hasher is configured.
func New[K comparable, V any](d *rcu.Domain, opts *Options[K]) *Table[K, V] {
	if opts == nil {
		opts = DefaultOptions[K]()
	}

	t := &Table[K, V]{
		domain:  d,
		opts:    *opts,
		count:   xsync.NewCounter(),
		metrics: metrics.NewSet(),
	}
	t.opts.normalize()

	t.hasher = t.opts.Hasher
	if t.hasher == nil {
		t.hasher = defaultHasher[K]()
	}
	if t.hasher == nil {
		var zero K
		panic(fmt.Sprintf("lfht: no default hasher for key type %T, set Options.Hasher", zero))
	}

	// bucket 0 is the head of the list, the other sentinels are inserted in index order
	size := t.opts.InitialSize
	buckets := make([]*Node[K, V], size)
	buckets[0] = newSentinel[K, V](0)
	buckets[0].link.Store(&link[K, V]{})
	for i := uint64(1); i < size; i++ {
		buckets[i] = newSentinel[K, V](i)
		insertSentinel(buckets[parentIndex(i)], buckets[i])
	}
	t.table.Store(&bucketTable[K, V]{size: size, buckets: buckets})

	label := fmt.Sprintf(`{table=%q}`, t.opts.Name)
	t.grows = t.metrics.NewCounter(`urcu_lfht_resizes_total{table="` + t.opts.Name + `",direction="grow"}`)
	t.shrinks = t.metrics.NewCounter(`urcu_lfht_resizes_total{table="` + t.opts.Name + `",direction="shrink"}`)
	t.metrics.NewGauge("urcu_lfht_nodes"+label, func() float64 {
		return float64(t.Count())
	})
	t.metrics.NewGauge("urcu_lfht_buckets"+label, func() float64 {
		return float64(t.Size())
	})

	return t
}

// Metrics returns the metrics set of the table
func (t *Table[K, V]) Metrics() *metrics.Set {
	return t.metrics
}

// Domain returns the domain protecting the table
func (t *Table[K, V]) Domain() *rcu.Domain {
	return t.domain
}

// Count returns the approximate number of nodes in the table
func (t *Table[K, V]) Count() int64 {
	if c := t.count.Value(); c > 0 {
		return c
	}
	return 0
}

// Size returns the current number of buckets
func (t *Table[K, V]) Size() uint64 {
	return t.table.Load().size
}

// --------------------------------------------------------------------------
// Read operations (inside a read-side critical section)
// --------------------------------------------------------------------------

// Lookup iterates over all nodes with the given key
func (t *Table[K, V]) Lookup(key K) iter.Seq[*Node[K, V]] {
	return func(yield func(*Node[K, V]) bool) {
		hash := t.hasher(key, t.opts.Seed)
		soKey := itemKey(hash)

		for n := t.table.Load().bucket(hash).link.Load().next; n != nil; {
			l := n.link.Load()
			if n.soKey > soKey {
				return
			}
			if n.soKey == soKey && !l.marked && n.key == key {
				if !yield(n) {
					return
				}
			}
			n = l.next
		}
	}
}

// LookupFirst returns a node with the given key
func (t *Table[K, V]) LookupFirst(key K) (*Node[K, V], bool) {
	for n := range t.Lookup(key) {
		return n, true
	}
	return nil, false
}

// All iterates over all nodes of the table in split order
func (t *Table[K, V]) All() iter.Seq[*Node[K, V]] {
	return func(yield func(*Node[K, V]) bool) {
		for n := t.table.Load().buckets[0].link.Load().next; n != nil; {
			l := n.link.Load()
			if !l.marked && !n.isSentinel() {
				if !yield(n) {
					return
				}
			}
			n = l.next
		}
	}
}

// CountNodes counts the live nodes by traversing the table
func (t *Table[K, V]) CountNodes() int64 {
	var count int64
	for range t.All() {
		count++
	}
	return count
}

// --------------------------------------------------------------------------
// Write operations (inside a read-side critical section)
// --------------------------------------------------------------------------

func (t *Table[K, V]) newNode(key K, value V) *Node[K, V] {
	hash := t.hasher(key, t.opts.Seed)
	return &Node[K, V]{soKey: itemKey(hash), hash: hash, key: key, value: value}
}

// Add inserts a new node. Existing nodes with the same key are kept.
//
// Thread-safety: This method is lock-free and can be called concurrently.
func (t *Table[K, V]) Add(key K, value V) *Node[K, V] {
	n := t.newNode(key, value)

	for {
		pos, ok := search(t.table.Load().bucket(n.hash), n.soKey, false)
		if ok && insertAt(pos, n) {
			break
		}
	}

	t.count.Inc()
	t.checkResize()
	return n
}

// AddUnique inserts a new node unless a node with the same key exists. Returns the existing
// node and false in that case. Concurrent AddUnique calls for one key insert at most one node.
//
// Thread-safety: This method is lock-free and can be called concurrently.
func (t *Table[K, V]) AddUnique(key K, value V) (*Node[K, V], bool) {
	n := t.newNode(key, value)

	for {
		pos, existing, ok := searchKey(t.table.Load().bucket(n.hash), n.soKey, key)
		if !ok {
			continue
		}
		if existing != nil {
			return existing, false
		}
		if insertAt(pos, n) {
			break
		}
	}

	t.count.Inc()
	t.checkResize()
	return n, true
}

// AddReplace inserts a new node, atomically replacing a node with the same key if one exists.
// Returns the new node and the replaced one (nil if the key was not present).
//
// Thread-safety: This method is lock-free and can be called concurrently.
func (t *Table[K, V]) AddReplace(key K, value V) (*Node[K, V], *Node[K, V]) {
	n := t.newNode(key, value)

	for {
		pos, existing, ok := searchKey(t.table.Load().bucket(n.hash), n.soKey, key)
		if !ok {
			continue
		}

		if existing != nil {
			if t.replace(existing, n) {
				return n, existing
			}
			continue
		}

		if insertAt(pos, n) {
			t.count.Inc()
			t.checkResize()
			return n, nil
		}
	}
}

// Replace atomically substitutes old by a new node with the same key and the given value.
// Returns ErrNotFound if old was already removed or replaced.
//
// Thread-safety: This method is lock-free and can be called concurrently.
func (t *Table[K, V]) Replace(old *Node[K, V], value V) (*Node[K, V], error) {
	if old == nil || old.isSentinel() {
		return nil, ErrNotFound
	}

	n := &Node[K, V]{soKey: old.soKey, hash: old.hash, key: old.key, value: value}
	if !t.replace(old, n) {
		return nil, ErrNotFound
	}
	return n, nil
}

// replace marks old and points it to n in one step, then unlinks old
func (t *Table[K, V]) replace(old, n *Node[K, V]) bool {
	for {
		oldLink := old.link.Load()
		if oldLink.marked {
			return false
		}

		n.link.Store(&link[K, V]{next: oldLink.next})
		if old.link.CompareAndSwap(oldLink, &link[K, V]{next: n, marked: true}) {
			break
		}
	}

	t.unlink(old)
	return true
}

// Remove removes n from the table. Readers that already hold n may still use it until they
// leave their critical section. Returns ErrNotFound if n was already removed or replaced.
//
// Thread-safety: This method is lock-free and can be called concurrently.
func (t *Table[K, V]) Remove(n *Node[K, V]) error {
	if n == nil || n.isSentinel() {
		return ErrNotFound
	}

	for {
		l := n.link.Load()
		if l.marked {
			return ErrNotFound
		}
		if n.link.CompareAndSwap(l, &link[K, V]{next: l.next, marked: true}) {
			break
		}
	}

	t.count.Dec()
	t.unlink(n)
	t.checkResize()
	return nil
}

// unlink makes sure the marked node n is no longer reachable
func (t *Table[K, V]) unlink(n *Node[K, V]) {
	for {
		if _, ok := search(t.table.Load().bucket(n.hash), n.soKey, true); ok {
			return
		}
	}
}

// insertSentinel links the sentinel s into the list, starting from the parent sentinel.
// Only called by the goroutine holding resizeMu (or during construction).
func insertSentinel[K comparable, V any](parent, s *Node[K, V]) {
	for {
		pos, ok := search(parent, s.soKey, false)
		if !ok {
			// parents are never removed while sentinels are inserted
			panic("lfht: parent sentinel removed during resize")
		}
		if insertAt(pos, s) {
			return
		}
	}
}
