package lfht

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/ValentinKolb/urcu/lib/util"
)

// BucketStats describes how the nodes of a table are spread over its buckets
type BucketStats struct {
	Buckets      uint64                 `json:"buckets"`
	Nodes        int64                  `json:"nodes"`
	EmptyBuckets uint64                 `json:"empty_buckets"`
	LongestChain int64                  `json:"longest_chain"`
	Chains       util.DistributionStats `json:"chains"`
}

// Stats traverses the table and collects the chain length of every bucket.
// Must be called inside a read-side critical section.
func (t *Table[K, V]) Stats() BucketStats {
	tbl := t.table.Load()
	chains := make([]float64, tbl.size)

	var current uint64
	var nodes int64
	for n := tbl.buckets[0]; n != nil; {
		l := n.link.Load()
		switch {
		case l.marked:
		case n.isSentinel():
			// sentinels of a concurrent grow are not buckets yet
			if index := bits.Reverse64(n.soKey); index < tbl.size {
				current = index
			}
		default:
			chains[current]++
			nodes++
		}
		n = l.next
	}

	stats := BucketStats{
		Buckets: tbl.size,
		Nodes:   nodes,
		Chains:  util.NewDistributionStats(chains),
	}
	for _, c := range chains {
		if c == 0 {
			stats.EmptyBuckets++
		}
		if int64(c) > stats.LongestChain {
			stats.LongestChain = int64(c)
		}
	}
	return stats
}

func (s BucketStats) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "buckets=%d nodes=%d empty=%d longest=%d", s.Buckets, s.Nodes, s.EmptyBuckets, s.LongestChain)
	fmt.Fprintf(&sb, " mean=%.2f stddev=%.2f quality=%.2f", s.Chains.Mean, s.Chains.StdDeviation, s.Chains.DistributionQuality)
	return sb.String()
}
