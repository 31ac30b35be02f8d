package lfht

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/urcu/lib/rcu"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newTestTable[K comparable](t testing.TB, opts *Options[K]) (*Table[K, int], *rcu.Reader) {
	t.Helper()
	return newFlavorTable(t, rcu.FlavorMemb, opts)
}

// newFlavorTable creates a table on a new domain of the given flavor and registers a reader
// for the test goroutine. A QSBR reader is online, so the test has to take it offline (or
// report quiescent states) while other goroutines wait for grace periods.
func newFlavorTable[K comparable](t testing.TB, flavor rcu.Flavor, opts *Options[K]) (*Table[K, int], *rcu.Reader) {
	t.Helper()

	dopts := rcu.DefaultOptions()
	dopts.Name = "test"
	dopts.Flavor = flavor
	d := rcu.NewDomain(dopts)
	if opts == nil {
		opts = DefaultOptions[K]()
	}
	opts.Name = "test"
	tbl := New[K, int](d, opts)

	r, err := d.Register()
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	t.Cleanup(func() {
		r.Unregister()
		tbl.Close()
		d.Close()
	})
	return tbl, r
}

// forEachFlavor runs fn as a subtest for every rcu flavor
func forEachFlavor(t *testing.T, fn func(t *testing.T, flavor rcu.Flavor)) {
	for _, flavor := range []rcu.Flavor{rcu.FlavorMemb, rcu.FlavorQSBR} {
		t.Run(flavor.String(), func(t *testing.T) {
			fn(t, flavor)
		})
	}
}

// offline runs fn with r offline, as required while the goroutine of r waits for resizes
func offline(r *rcu.Reader, fn func()) {
	r.Offline()
	defer r.Online()
	fn()
}

// waitResize waits until no resize is running and the load is within the thresholds.
// r is taken offline for the wait.
func waitResize[K comparable, V any](t *testing.T, tbl *Table[K, V], r *rcu.Reader) {
	t.Helper()

	r.Offline()
	defer r.Online()

	deadline := time.Now().Add(10 * time.Second)
	for tbl.resizing.Load() || tbl.needsResize() {
		if time.Now().After(deadline) {
			t.Fatalf("Timeout waiting for resize (size=%d, count=%d)", tbl.Size(), tbl.Count())
		}
		time.Sleep(time.Millisecond)
	}
}

func countKey[K comparable, V any](tbl *Table[K, V], key K) int {
	count := 0
	for range tbl.Lookup(key) {
		count++
	}
	return count
}

// --------------------------------------------------------------------------
// Basic operations
// --------------------------------------------------------------------------

func TestAddLookupRemove(t *testing.T) {
	tbl, r := newTestTable[string](t, nil)

	r.ReadLock()
	defer r.ReadUnlock()

	if _, ok := tbl.LookupFirst("a"); ok {
		t.Fatal("Lookup in empty table should fail")
	}

	n := tbl.Add("a", 1)
	if n.Key() != "a" || n.Value() != 1 {
		t.Errorf("Unexpected node %v=%v", n.Key(), n.Value())
	}

	found, ok := tbl.LookupFirst("a")
	if !ok || found != n {
		t.Fatal("Expected to find the added node")
	}
	if _, ok := tbl.LookupFirst("b"); ok {
		t.Error("Lookup of a missing key should fail")
	}
	if tbl.Count() != 1 {
		t.Errorf("Expected count 1, got %d", tbl.Count())
	}

	if err := tbl.Remove(n); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !n.IsRemoved() {
		t.Error("Removed node should report IsRemoved")
	}
	if err := tbl.Remove(n); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second remove, got %v", err)
	}
	if _, ok := tbl.LookupFirst("a"); ok {
		t.Error("Removed key should not be found")
	}
	if tbl.Count() != 0 || tbl.CountNodes() != 0 {
		t.Errorf("Expected empty table, count=%d nodes=%d", tbl.Count(), tbl.CountNodes())
	}
	if err := tbl.Remove(nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for nil node, got %v", err)
	}
}

func TestDuplicates(t *testing.T) {
	tbl, r := newTestTable[string](t, nil)

	r.ReadLock()
	defer r.ReadUnlock()

	n1 := tbl.Add("dup", 1)
	n2 := tbl.Add("dup", 2)
	tbl.Add("other", 3)

	if c := countKey(tbl, "dup"); c != 2 {
		t.Fatalf("Expected 2 nodes for duplicate key, got %d", c)
	}

	values := map[int]bool{}
	for n := range tbl.Lookup("dup") {
		values[n.Value()] = true
	}
	if !values[1] || !values[2] {
		t.Errorf("Expected values 1 and 2, got %v", values)
	}

	_ = tbl.Remove(n1)
	if c := countKey(tbl, "dup"); c != 1 {
		t.Errorf("Expected 1 node after removal, got %d", c)
	}
	if n, _ := tbl.LookupFirst("dup"); n != n2 {
		t.Error("Expected the remaining duplicate")
	}
}

func TestAddUnique(t *testing.T) {
	tbl, r := newTestTable[string](t, nil)

	r.ReadLock()
	n, added := tbl.AddUnique("k", 1)
	if !added {
		t.Fatal("First AddUnique should insert")
	}
	existing, added := tbl.AddUnique("k", 2)
	if added || existing != n {
		t.Fatal("Second AddUnique should return the existing node")
	}

	// after a removal the key can be added again
	_ = tbl.Remove(n)
	if _, added := tbl.AddUnique("k", 3); !added {
		t.Error("AddUnique after Remove should insert")
	}
	r.ReadUnlock()
}

func TestAddUniqueConcurrent(t *testing.T) {
	tbl, _ := newTestTable[int](t, nil)
	d := tbl.Domain()

	const numGoroutines = 8
	const numKeys = 200

	var inserted atomic.Int64
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for g := 0; g < numGoroutines; g++ {
		go func(g int) {
			defer wg.Done()

			r, err := d.Register()
			if err != nil {
				t.Errorf("Register failed: %v", err)
				return
			}
			defer r.Unregister()

			for k := 0; k < numKeys; k++ {
				r.ReadLock()
				if _, added := tbl.AddUnique(k, g); added {
					inserted.Add(1)
				}
				r.ReadUnlock()
			}
		}(g)
	}
	wg.Wait()

	if got := inserted.Load(); got != numKeys {
		t.Errorf("Expected %d inserts, got %d", numKeys, got)
	}

	r, _ := d.Register()
	defer r.Unregister()
	r.ReadLock()
	defer r.ReadUnlock()
	for k := 0; k < numKeys; k++ {
		if c := countKey(tbl, k); c != 1 {
			t.Fatalf("Key %d occurs %d times", k, c)
		}
	}
}

func TestAddReplace(t *testing.T) {
	tbl, r := newTestTable[string](t, nil)

	r.ReadLock()
	defer r.ReadUnlock()

	n1, old := tbl.AddReplace("k", 1)
	if old != nil {
		t.Fatal("AddReplace of a new key should not replace anything")
	}

	n2, old := tbl.AddReplace("k", 2)
	if old != n1 {
		t.Fatal("AddReplace should return the replaced node")
	}
	if !n1.IsRemoved() {
		t.Error("Replaced node should report IsRemoved")
	}
	if c := countKey(tbl, "k"); c != 1 {
		t.Errorf("Expected 1 node for key, got %d", c)
	}
	if n, _ := tbl.LookupFirst("k"); n != n2 || n.Value() != 2 {
		t.Error("Expected the new node")
	}
	if tbl.Count() != 1 {
		t.Errorf("Expected count 1, got %d", tbl.Count())
	}
}

func TestReplace(t *testing.T) {
	tbl, r := newTestTable[string](t, nil)

	r.ReadLock()
	defer r.ReadUnlock()

	tbl.Add("before", 0)
	old := tbl.Add("k", 1)
	tbl.Add("after", 2)

	n, err := tbl.Replace(old, 10)
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if n.Key() != "k" || n.Value() != 10 {
		t.Errorf("Unexpected node %v=%v", n.Key(), n.Value())
	}
	if _, err := tbl.Replace(old, 11); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound replacing a replaced node, got %v", err)
	}
	if found, _ := tbl.LookupFirst("k"); found != n {
		t.Error("Lookup should return the new node")
	}
	if tbl.CountNodes() != 3 {
		t.Errorf("Expected 3 nodes, got %d", tbl.CountNodes())
	}

	if err := tbl.Remove(n); err != nil {
		t.Errorf("Remove of the new node failed: %v", err)
	}
	if tbl.CountNodes() != 2 {
		t.Errorf("Expected 2 nodes, got %d", tbl.CountNodes())
	}
}

// TestReplaceIsAtomic checks that concurrent lookups always see exactly one node for a key
// that is replaced over and over
func TestReplaceIsAtomic(t *testing.T) {
	tbl, r := newTestTable[string](t, nil)
	d := tbl.Domain()

	r.ReadLock()
	tbl.Add("k", 0)
	r.ReadUnlock()

	var stop atomic.Bool
	var anomalies atomic.Int64

	const numReaders = 4
	var wg sync.WaitGroup
	wg.Add(numReaders)
	for i := 0; i < numReaders; i++ {
		go func() {
			defer wg.Done()
			rr, _ := d.Register()
			defer rr.Unregister()

			for !stop.Load() {
				rr.ReadLock()
				if c := countKey(tbl, "k"); c != 1 {
					anomalies.Add(1)
				}
				rr.ReadUnlock()
			}
		}()
	}

	for i := 1; i <= 2000; i++ {
		r.ReadLock()
		n, ok := tbl.LookupFirst("k")
		if !ok {
			r.ReadUnlock()
			t.Fatal("Key vanished")
		}
		if _, err := tbl.Replace(n, i); err != nil {
			t.Errorf("Replace failed: %v", err)
		}
		r.ReadUnlock()
	}

	stop.Store(true)
	wg.Wait()

	if a := anomalies.Load(); a != 0 {
		t.Errorf("Lookups saw %d times not exactly one node", a)
	}
}

// --------------------------------------------------------------------------
// Hashing
// --------------------------------------------------------------------------

type point struct{ x, y int }

func TestCustomHasher(t *testing.T) {
	opts := DefaultOptions[point]()
	opts.Hasher = func(p point, seed uint64) uint64 {
		return uint64(p.x)*31 + uint64(p.y) + seed
	}
	tbl, r := newTestTable(t, opts)

	r.ReadLock()
	defer r.ReadUnlock()

	tbl.Add(point{1, 2}, 12)
	if n, ok := tbl.LookupFirst(point{1, 2}); !ok || n.Value() != 12 {
		t.Error("Expected to find the struct key")
	}
	if _, ok := tbl.LookupFirst(point{2, 1}); ok {
		t.Error("Unexpected match for a different struct key")
	}
}

func TestMissingHasherPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected a panic for a key type without hasher")
		}
	}()
	New[point, int](rcu.NewDomain(nil), nil)
}

func TestCollisions(t *testing.T) {
	opts := DefaultOptions[string]()
	opts.Hasher = func(string, uint64) uint64 { return 42 }
	tbl, r := newTestTable(t, opts)

	r.ReadLock()
	defer r.ReadUnlock()

	nodes := map[string]*Node[string, int]{}
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key-%d", i)
		nodes[key] = tbl.Add(key, i)
	}

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key-%d", i)
		n, ok := tbl.LookupFirst(key)
		if !ok || n.Value() != i {
			t.Fatalf("Key %s not found among colliding keys", key)
		}
	}

	for i := 0; i < 100; i += 2 {
		_ = tbl.Remove(nodes[fmt.Sprintf("key-%d", i)])
	}
	for i := 0; i < 100; i++ {
		_, ok := tbl.LookupFirst(fmt.Sprintf("key-%d", i))
		if ok != (i%2 == 1) {
			t.Errorf("Key %d: expected found=%v", i, i%2 == 1)
		}
	}

	if _, added := tbl.AddUnique("key-1", 0); added {
		t.Error("AddUnique should find an existing colliding key")
	}
}

// --------------------------------------------------------------------------
// Resizing
// --------------------------------------------------------------------------

// TestResizeMembership grows and shrinks the table and checks that exactly the permanent keys
// remain
func TestResizeMembership(t *testing.T) {
	forEachFlavor(t, testResizeMembership)
}

func testResizeMembership(t *testing.T, flavor rcu.Flavor) {
	for _, n := range []int{0, 1, 8, 64} {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			opts := DefaultOptions[string]()
			opts.InitialSize = 16
			opts.MinSize = 16
			tbl, r := newFlavorTable(t, flavor, opts)

			r.ReadLock()
			for i := 0; i < n; i++ {
				tbl.Add(fmt.Sprintf("key-%d", i), i)
			}
			var extras []*Node[string, int]
			for i := 0; i < 1024; i++ {
				extras = append(extras, tbl.Add(fmt.Sprintf("extra-%d", i), i))
			}
			r.ReadUnlock()

			waitResize(t, tbl, r)
			if tbl.Size() <= 16 {
				t.Errorf("Expected the table to grow, size is %d", tbl.Size())
			}

			r.ReadLock()
			for _, e := range extras {
				if err := tbl.Remove(e); err != nil {
					t.Fatalf("Remove failed: %v", err)
				}
			}
			r.ReadUnlock()

			waitResize(t, tbl, r)

			r.ReadLock()
			defer r.ReadUnlock()

			if c := tbl.CountNodes(); c != int64(n) {
				t.Errorf("Expected %d nodes after resizes, got %d", n, c)
			}
			for i := 0; i < n; i++ {
				if _, ok := tbl.LookupFirst(fmt.Sprintf("key-%d", i)); !ok {
					t.Errorf("Key %d lost during resize", i)
				}
			}
			if g := tbl.grows.Get(); g < 1 {
				t.Errorf("Expected at least one grow, got %d", g)
			}
			if s := tbl.shrinks.Get(); s < 1 {
				t.Errorf("Expected at least one shrink, got %d", s)
			}
			if tbl.Size() < 16 {
				t.Errorf("Table shrank below MinSize: %d", tbl.Size())
			}
		})
	}
}

func TestExplicitResize(t *testing.T) {
	forEachFlavor(t, testExplicitResize)
}

func testExplicitResize(t *testing.T, flavor rcu.Flavor) {
	opts := DefaultOptions[int]()
	opts.AutoResize = false
	opts.MinSize = 4
	opts.MaxSize = 1 << 12
	tbl, r := newFlavorTable(t, flavor, opts)

	r.ReadLock()
	for i := 0; i < 100; i++ {
		tbl.Add(i, i)
	}
	r.ReadUnlock()

	for _, size := range []uint64{1000, 4, 1 << 20, 64} {
		var err error
		offline(r, func() { err = tbl.Resize(size) })
		if err != nil {
			t.Fatalf("Resize(%d) failed: %v", size, err)
		}

		var want uint64
		switch size {
		case 1000:
			want = 1024
		case 4:
			want = 4
		case 1 << 20:
			want = 1 << 12
		case 64:
			want = 64
		}
		if tbl.Size() != want {
			t.Errorf("Resize(%d): expected size %d, got %d", size, want, tbl.Size())
		}

		r.ReadLock()
		if c := tbl.CountNodes(); c != 100 {
			t.Errorf("Resize(%d): expected 100 nodes, got %d", size, c)
		}
		r.ReadUnlock()
	}
}

// TestLookupsDuringResize resizes back and forth while readers look up permanent keys
// through whichever bucket array they loaded
func TestLookupsDuringResize(t *testing.T) {
	forEachFlavor(t, testLookupsDuringResize)
}

func testLookupsDuringResize(t *testing.T, flavor rcu.Flavor) {
	opts := DefaultOptions[int]()
	opts.AutoResize = false
	tbl, r := newFlavorTable(t, flavor, opts)
	d := tbl.Domain()

	const numKeys = 256
	r.ReadLock()
	for i := 0; i < numKeys; i++ {
		tbl.Add(i, i)
	}
	r.ReadUnlock()

	var stop atomic.Bool
	var misses atomic.Int64
	var lookups atomic.Int64

	const numReaders = 4
	var wg sync.WaitGroup
	wg.Add(numReaders + 1)
	for i := 0; i < numReaders; i++ {
		go func() {
			defer wg.Done()
			rr, _ := d.Register()
			defer rr.Unregister()

			for !stop.Load() {
				rr.ReadLock()
				for k := 0; k < numKeys; k++ {
					if _, ok := tbl.LookupFirst(k); !ok {
						misses.Add(1)
					}
				}
				rr.ReadUnlock()
				rr.QuiescentState()
				lookups.Add(1)
			}
		}()
	}

	// a writer adds and removes other keys at the same time
	go func() {
		defer wg.Done()
		rw, _ := d.Register()
		defer rw.Unregister()

		for i := 0; !stop.Load(); i++ {
			rw.ReadLock()
			n := tbl.Add(numKeys+i, i)
			_ = tbl.Remove(n)
			rw.ReadUnlock()
			rw.QuiescentState()
		}
	}()

	offline(r, func() {
		for i := 0; i < 20; i++ {
			_ = tbl.Resize(1024)
			_ = tbl.Resize(2)
		}
	})

	stop.Store(true)
	wg.Wait()

	if m := misses.Load(); m != 0 {
		t.Errorf("Readers missed permanent keys %d times", m)
	}
	if lookups.Load() == 0 {
		t.Error("Readers made no progress")
	}
}

func TestConcurrentResizers(t *testing.T) {
	forEachFlavor(t, func(t *testing.T, flavor rcu.Flavor) {
		t.Run("Explicit", func(t *testing.T) {
			testConcurrentResizers(t, flavor, false)
		})
		t.Run("WithWorker", func(t *testing.T) {
			testConcurrentResizers(t, flavor, true)
		})
	})
}

// testConcurrentResizers alternates growing and shrinking Resize calls from several
// goroutines. With autoResize, a writer keeps the resize worker busy at the same time.
func testConcurrentResizers(t *testing.T, flavor rcu.Flavor, autoResize bool) {
	opts := DefaultOptions[int]()
	opts.AutoResize = autoResize
	opts.InitialSize = 4096
	opts.MinSize = 1
	opts.MaxSize = 1 << 13
	tbl, r := newFlavorTable(t, flavor, opts)
	d := tbl.Domain()

	const numKeys = 100
	r.ReadLock()
	for i := 0; i < numKeys; i++ {
		tbl.Add(i, i)
	}
	r.ReadUnlock()

	const numResizers = 4
	const numRounds = 200

	var stop atomic.Bool
	var writer sync.WaitGroup
	if autoResize {
		writer.Add(1)
		go func() {
			defer writer.Done()
			rw, _ := d.Register()
			defer rw.Unregister()

			// bursts of adds and removes cross both load thresholds
			for i := 0; !stop.Load(); i++ {
				nodes := make([]*Node[int, int], 0, 512)
				rw.ReadLock()
				for j := 0; j < 512; j++ {
					nodes = append(nodes, tbl.Add(numKeys+j, i))
				}
				rw.ReadUnlock()
				rw.QuiescentState()

				rw.ReadLock()
				for _, n := range nodes {
					_ = tbl.Remove(n)
				}
				rw.ReadUnlock()
				rw.QuiescentState()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(numResizers)
		for g := 0; g < numResizers; g++ {
			go func() {
				defer wg.Done()
				for i := 0; i < numRounds; i++ {
					size := uint64(1)
					if (i+g)%2 == 1 {
						size = 4096
					}
					if err := tbl.Resize(size); err != nil {
						t.Errorf("Resize(%d) failed: %v", size, err)
						return
					}
				}
			}()
		}
		wg.Wait()
	}()

	r.Offline()
	select {
	case <-done:
	case <-time.After(20 * time.Second):
		t.Fatalf("Concurrent resizes did not finish (size=%d)", tbl.Size())
	}
	stop.Store(true)
	writer.Wait()
	r.Online()

	waitResize(t, tbl, r)

	r.ReadLock()
	defer r.ReadUnlock()

	if c := tbl.CountNodes(); c != numKeys {
		t.Errorf("Expected %d nodes after resizes, got %d", numKeys, c)
	}
	for i := 0; i < numKeys; i++ {
		if _, ok := tbl.LookupFirst(i); !ok {
			t.Errorf("Key %d lost during resizes", i)
		}
	}
}

// --------------------------------------------------------------------------
// Concurrency
// --------------------------------------------------------------------------

func TestConcurrentAddRemove(t *testing.T) {
	forEachFlavor(t, testConcurrentAddRemove)
}

func testConcurrentAddRemove(t *testing.T, flavor rcu.Flavor) {
	tbl, r0 := newFlavorTable[string](t, flavor, nil)
	d := tbl.Domain()

	const numGoroutines = 8
	const numOps = 1000

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for g := 0; g < numGoroutines; g++ {
		go func(g int) {
			defer wg.Done()
			r, _ := d.Register()
			defer r.Unregister()

			nodes := make([]*Node[string, int], 0, numOps)
			for i := 0; i < numOps; i++ {
				r.ReadLock()
				nodes = append(nodes, tbl.Add(fmt.Sprintf("g%d-%d", g, i), i))
				r.ReadUnlock()
				r.QuiescentState()
			}
			for i, n := range nodes {
				r.ReadLock()
				if _, ok := tbl.LookupFirst(fmt.Sprintf("g%d-%d", g, i)); !ok {
					t.Errorf("Key g%d-%d not found", g, i)
				}
				if err := tbl.Remove(n); err != nil {
					t.Errorf("Remove failed: %v", err)
				}
				r.ReadUnlock()
				r.QuiescentState()
			}
		}(g)
	}
	offline(r0, wg.Wait)
	waitResize(t, tbl, r0)

	r0.ReadLock()
	defer r0.ReadUnlock()

	if c := tbl.Count(); c != 0 {
		t.Errorf("Expected count 0, got %d", c)
	}
	if c := tbl.CountNodes(); c != 0 {
		t.Errorf("Expected 0 nodes, got %d", c)
	}
}

func TestConcurrentRemoveSameNode(t *testing.T) {
	tbl, r := newTestTable[string](t, nil)
	d := tbl.Domain()

	r.ReadLock()
	n := tbl.Add("k", 1)
	r.ReadUnlock()

	const numGoroutines = 8
	var successes atomic.Int32
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for g := 0; g < numGoroutines; g++ {
		go func() {
			defer wg.Done()
			rr, _ := d.Register()
			defer rr.Unregister()
			rr.ReadLock()
			if tbl.Remove(n) == nil {
				successes.Add(1)
			}
			rr.ReadUnlock()
		}()
	}
	wg.Wait()

	if s := successes.Load(); s != 1 {
		t.Errorf("Expected exactly one successful Remove, got %d", s)
	}
}

// --------------------------------------------------------------------------
// Stats and metrics
// --------------------------------------------------------------------------

func TestStats(t *testing.T) {
	opts := DefaultOptions[int]()
	opts.AutoResize = false
	opts.InitialSize = 8
	tbl, r := newTestTable(t, opts)

	r.ReadLock()
	defer r.ReadUnlock()

	stats := tbl.Stats()
	if stats.Buckets != 8 || stats.Nodes != 0 || stats.EmptyBuckets != 8 {
		t.Errorf("Unexpected stats for empty table: %s", stats)
	}

	for i := 0; i < 80; i++ {
		tbl.Add(i, i)
	}
	stats = tbl.Stats()
	if stats.Nodes != 80 {
		t.Errorf("Expected 80 nodes, got %d", stats.Nodes)
	}
	if stats.Chains.Mean != 10 {
		t.Errorf("Expected mean chain length 10, got %.2f", stats.Chains.Mean)
	}
	if stats.LongestChain < 10 {
		t.Errorf("Longest chain %d is shorter than the mean", stats.LongestChain)
	}
}

func TestMetrics(t *testing.T) {
	opts := DefaultOptions[int]()
	opts.AutoResize = false
	tbl, r := newTestTable(t, opts)

	r.ReadLock()
	tbl.Add(1, 1)
	r.ReadUnlock()
	_ = tbl.Resize(64)

	var buf bytes.Buffer
	tbl.Metrics().WritePrometheus(&buf)
	out := buf.String()

	for _, want := range []string{
		`urcu_lfht_resizes_total{table="test",direction="grow"} 1`,
		`urcu_lfht_nodes{table="test"} 1`,
		`urcu_lfht_buckets{table="test"} 64`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in metrics output:\n%s", want, out)
		}
	}
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

func BenchmarkLookup(b *testing.B) {
	tbl, r := newTestTable[int](b, nil)
	d := tbl.Domain()

	r.ReadLock()
	for i := 0; i < 10000; i++ {
		tbl.Add(i, i)
	}
	r.ReadUnlock()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rr, _ := d.Register()
		defer rr.Unregister()
		i := 0
		for pb.Next() {
			rr.ReadLock()
			tbl.LookupFirst(i % 10000)
			rr.ReadUnlock()
			i++
		}
	})
}

func BenchmarkAddRemove(b *testing.B) {
	tbl, _ := newTestTable[int](b, nil)
	d := tbl.Domain()

	var ids atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rr, _ := d.Register()
		defer rr.Unregister()
		base := int(ids.Add(1)) << 32
		i := 0
		for pb.Next() {
			rr.ReadLock()
			n := tbl.Add(base+i, i)
			_ = tbl.Remove(n)
			rr.ReadUnlock()
			i++
		}
	})
}
