package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/placemark/internal/geo"
)

func TestShardFor_Bounded(t *testing.T) {
	for _, key := range geo.CellNeighborhood(geo.Point{Lat: 48.8566, Lon: 2.3522}) {
		i := shardFor(key)
		assert.GreaterOrEqual(t, i, 0)
		assert.Less(t, i, lockShards)
	}
}

func TestLockAround_NearbyPointsShareShard(t *testing.T) {
	// Points within the clustering threshold overlap in at least one
	// neighborhood cell, so their shard sets must intersect.
	a := geo.Point{Lat: 48.8566, Lon: 2.3522}
	b := geo.Point{Lat: 48.8570, Lon: 2.3530}

	shardsOf := func(p geo.Point) map[int]bool {
		set := map[int]bool{}
		for _, key := range geo.CellNeighborhood(p) {
			set[shardFor(key)] = true
		}
		return set
	}

	setA, setB := shardsOf(a), shardsOf(b)
	common := false
	for i := range setA {
		if setB[i] {
			common = true
			break
		}
	}
	assert.True(t, common)
}

func TestLockAround_ReleaseAllowsRelock(t *testing.T) {
	locks := newCellLocks()
	p := geo.Point{Lat: 48.8566, Lon: 2.3522}

	unlock := locks.lockAround(p)
	unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		unlock := locks.lockAround(p)
		unlock()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relock after release blocked")
	}
}

func TestLockAround_ExcludesConcurrentNeighborhood(t *testing.T) {
	locks := newCellLocks()
	p := geo.Point{Lat: 48.8566, Lon: 2.3522}

	unlock := locks.lockAround(p)

	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		unlock := locks.lockAround(p)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second lockAround succeeded while neighborhood was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second lockAround never acquired after release")
	}
}
