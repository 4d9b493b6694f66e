// Package location holds the canonical location registry: the models, the
// Store contract, and its Postgres, SQLite, and in-memory drivers.
package location

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/placemark/internal/geo"
)

// ThresholdKm is the clustering threshold: two points at most this far apart
// belong to the same location. Fixed at 200 meters.
const ThresholdKm = 0.2

// ErrNotFound is returned when a referenced location or marker does not exist.
var ErrNotFound = eris.New("location: not found")

// ErrInvalidHierarchy is returned for parent assignments that would violate
// the city/landmark rules (missing parent, non-city parent, self-parent).
var ErrInvalidHierarchy = eris.New("location: invalid hierarchy")

// Type is the closed city/landmark taxonomy.
type Type string

const (
	TypeUnset    Type = ""
	TypeCity     Type = "city"
	TypeLandmark Type = "landmark"
)

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case TypeUnset, TypeCity, TypeLandmark:
		return true
	}
	return false
}

// TypeChange is the closed variant of a requested type/parent transition. A
// parent is only meaningful for landmarks; Validate enforces that at the edge
// instead of letting stringly-typed payloads through.
type TypeChange struct {
	Type     Type    `json:"type"`
	ParentID *string `json:"parent_id,omitempty"`
}

// Validate rejects unknown types and parents attached to non-landmarks.
func (c TypeChange) Validate() error {
	if !c.Type.Valid() {
		return eris.Wrapf(ErrInvalidHierarchy, "unknown type %q", string(c.Type))
	}
	if c.ParentID != nil && c.Type != TypeLandmark {
		return eris.Wrap(ErrInvalidHierarchy, "parent is only meaningful for landmarks")
	}
	return nil
}

// Location is a canonical deduplicated geospatial cluster. The centroid
// (Lat/Lon) always equals the mean of its member markers' coordinates; a
// location with zero members is deleted, never kept.
type Location struct {
	ID        string    `json:"id"`
	Lat       float64   `json:"latitude"`
	Lon       float64   `json:"longitude"`
	City      string    `json:"city,omitempty"`
	District  string    `json:"district,omitempty"`
	Country   string    `json:"country,omitempty"`
	Name      string    `json:"name,omitempty"`
	Type      Type      `json:"type,omitempty"`
	ParentID  *string   `json:"parent_location_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Point returns the location's centroid.
func (l *Location) Point() geo.Point {
	return geo.Point{Lat: l.Lat, Lon: l.Lon}
}

// Marker is a single geo-tagged point of interest owned by the CRUD layer.
// This engine reads its coordinates and maintains its LocationID pointer.
type Marker struct {
	ID         string    `json:"id"`
	Lat        float64   `json:"latitude"`
	Lon        float64   `json:"longitude"`
	City       string    `json:"city,omitempty"`
	District   string    `json:"district,omitempty"`
	Country    string    `json:"country,omitempty"`
	Type       Type      `json:"type,omitempty"`
	ParentID   *string   `json:"parent_location_id,omitempty"`
	LocationID *string   `json:"location_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Point returns the marker's coordinates.
func (m *Marker) Point() geo.Point {
	return geo.Point{Lat: m.Lat, Lon: m.Lon}
}

// LocationMeta carries the user-editable metadata fields. Clustering never
// touches these.
type LocationMeta struct {
	Name     string `json:"name"`
	City     string `json:"city"`
	District string `json:"district"`
	Country  string `json:"country"`
}

// RepairRun records one execution of the orphan repair job.
type RepairRun struct {
	ID            string    `json:"id"`
	TotalOrphans  int       `json:"total_orphans"`
	Fixed         int       `json:"fixed"`
	Failed        int       `json:"failed"`
	CitiesCreated int       `json:"cities_created"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Stats summarizes registry contents for the stats command.
type Stats struct {
	Locations         int64 `json:"locations"`
	Cities            int64 `json:"cities"`
	Landmarks         int64 `json:"landmarks"`
	OrphanLandmarks   int64 `json:"orphan_landmarks"`
	Markers           int64 `json:"markers"`
	UnassignedMarkers int64 `json:"unassigned_markers"`
}
