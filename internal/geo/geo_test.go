package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm_KnownPairs(t *testing.T) {
	// Austin to Dallas is roughly 293 km.
	d := DistanceKm(Point{30.2672, -97.7431}, Point{32.7767, -96.7970})
	assert.InDelta(t, 293, d, 5)

	// Paris city-center pair from production data, roughly 95 m apart.
	d = DistanceKm(Point{48.8566, 2.3522}, Point{48.8570, 2.3530})
	assert.InDelta(t, 0.095, d, 0.015)
}

func TestDistanceKm_Identity(t *testing.T) {
	assert.InDelta(t, 0, DistanceKm(Point{30.0, -97.0}, Point{30.0, -97.0}), 0.001)
}

func TestDistanceKm_Symmetric(t *testing.T) {
	a := Point{51.5074, -0.1278}
	b := Point{48.8566, 2.3522}
	assert.InDelta(t, DistanceKm(a, b), DistanceKm(b, a), 1e-9)
}

func TestCentroid(t *testing.T) {
	c := Centroid([]Point{{48.8566, 2.3522}, {48.8570, 2.3530}})
	assert.InDelta(t, 48.8568, c.Lat, 1e-9)
	assert.InDelta(t, 2.3526, c.Lon, 1e-9)
}

func TestCentroid_SinglePoint(t *testing.T) {
	c := Centroid([]Point{{51.5074, -0.1278}})
	assert.Equal(t, Point{51.5074, -0.1278}, c)
}

func TestCentroid_Empty(t *testing.T) {
	assert.Equal(t, Point{}, Centroid(nil))
}

func TestCell_StableWithinCell(t *testing.T) {
	a := Cell(Point{48.8566, 2.3522})
	b := Cell(Point{48.8568, 2.3524})
	assert.Equal(t, a, b)
}

func TestCell_NegativeCoordinates(t *testing.T) {
	// Floor, not truncation: -0.001 and +0.001 must land in different cells.
	assert.NotEqual(t, Cell(Point{-0.001, 0}), Cell(Point{0.001, 0}))
}

func TestCellNeighborhood(t *testing.T) {
	keys := CellNeighborhood(Point{48.8566, 2.3522})
	assert.Len(t, keys, 9)
	assert.Contains(t, keys, Cell(Point{48.8566, 2.3522}))

	seen := map[string]bool{}
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate cell key %s", k)
		seen[k] = true
	}
}
