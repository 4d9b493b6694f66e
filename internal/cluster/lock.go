package cluster

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/sells-group/placemark/internal/geo"
)

// lockShards bounds the lock set for long-lived processes: cell keys hash onto
// a fixed shard array instead of allocating a mutex per cell ever touched.
const lockShards = 256

// cellLocks serializes assignments landing near each other. Two concurrent
// assigns for points within threshold would otherwise both see "no match" in
// the registry and create duplicate clusters; locking the point's grid cell
// neighborhood closes that check-then-act window within one process. Cross-
// process writers are covered by the merge job instead.
type cellLocks struct {
	shards [lockShards]sync.Mutex
}

func newCellLocks() *cellLocks {
	return &cellLocks{}
}

// lockAround acquires the shards covering the point's cell neighborhood in
// ascending index order so overlapping neighborhoods cannot deadlock. The
// returned function releases them in reverse order. Nearby points share at
// least one neighborhood cell, hence at least one shard.
func (c *cellLocks) lockAround(p geo.Point) func() {
	seen := make(map[int]bool, 9)
	idxs := make([]int, 0, 9)
	for _, key := range geo.CellNeighborhood(p) {
		i := shardFor(key)
		if !seen[i] {
			seen[i] = true
			idxs = append(idxs, i)
		}
	}
	sort.Ints(idxs)

	for _, i := range idxs {
		c.shards[i].Lock()
	}
	return func() {
		for i := len(idxs) - 1; i >= 0; i-- {
			c.shards[idxs[i]].Unlock()
		}
	}
}

func shardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % lockShards)
}
