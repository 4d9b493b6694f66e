// Package geo provides the distance and centroid math used by location
// clustering.
package geo

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

// Point is a coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceKm returns the great-circle (haversine) distance between two points
// in kilometers.
func DistanceKm(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// Centroid returns the arithmetic mean latitude and longitude of points.
// The empty input returns (0,0) by convention; callers must not treat that as
// a valid coordinate. The unweighted degree mean misbehaves near the poles and
// the ±180° antimeridian, which is acceptable for city-scale clusters.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var sumLat, sumLon float64
	for _, p := range points {
		sumLat += p.Lat
		sumLon += p.Lon
	}
	n := float64(len(points))
	return Point{Lat: sumLat / n, Lon: sumLon / n}
}

// cellSize is the coarse grid resolution, in degrees, used to key assignment
// serialization. 0.01° is roughly 1.1 km of latitude, several times the
// clustering threshold, so two points within threshold land in the same cell
// or an adjacent one.
const cellSize = 0.01

// Cell returns the coarse grid cell key for a point.
func Cell(p Point) string {
	return fmt.Sprintf("%d:%d", int(math.Floor(p.Lat/cellSize)), int(math.Floor(p.Lon/cellSize)))
}

// CellNeighborhood returns the cell keys of the point's cell and its eight
// neighbors. Locking the whole neighborhood covers points within threshold
// that straddle a cell boundary.
func CellNeighborhood(p Point) []string {
	row := int(math.Floor(p.Lat / cellSize))
	col := int(math.Floor(p.Lon / cellSize))
	keys := make([]string, 0, 9)
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			keys = append(keys, fmt.Sprintf("%d:%d", row+dr, col+dc))
		}
	}
	return keys
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}
