package location

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/placemark/internal/geo"
	"github.com/sells-group/placemark/internal/ident"
)

// MemStore implements Store in memory. It backs the "memory" driver for local
// development and is the store double used across the engine's tests.
// Iteration follows insertion order, matching the relational drivers.
type MemStore struct {
	mu sync.Mutex

	locationOrder []string
	locations     map[string]*Location
	markerOrder   []string
	markers       map[string]*Marker
	repairRuns    []RepairRun
}

// NewMemStore creates an empty in-memory registry.
func NewMemStore() *MemStore {
	return &MemStore{
		locations: map[string]*Location{},
		markers:   map[string]*Marker{},
	}
}

// CreateLocation implements Store.
func (s *MemStore) CreateLocation(_ context.Context, loc *Location) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := ident.GenerateUnique(func(candidate string) (bool, error) {
		_, taken := s.locations[candidate]
		return taken, nil
	})
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	stored := *loc
	stored.ID = id
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.locations[id] = &stored
	s.locationOrder = append(s.locationOrder, id)
	return id, nil
}

// GetLocation implements Store.
func (s *MemStore) GetLocation(_ context.Context, id string) (*Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "location %s", id)
	}
	cp := *loc
	return &cp, nil
}

// ListLocations implements Store.
func (s *MemStore) ListLocations(_ context.Context) ([]Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	locs := make([]Location, 0, len(s.locationOrder))
	for _, id := range s.locationOrder {
		locs = append(locs, *s.locations[id])
	}
	return locs, nil
}

// FindWithin implements Store, first match in insertion order.
func (s *MemStore) FindWithin(_ context.Context, p geo.Point, thresholdKm float64) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.locationOrder {
		loc := s.locations[id]
		if geo.DistanceKm(p, loc.Point()) <= thresholdKm {
			return id, true, nil
		}
	}
	return "", false, nil
}

// UpdateCentroid implements Store.
func (s *MemStore) UpdateCentroid(_ context.Context, id string, p geo.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "location %s", id)
	}
	loc.Lat = p.Lat
	loc.Lon = p.Lon
	loc.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateLocationMeta implements Store.
func (s *MemStore) UpdateLocationMeta(_ context.Context, id string, meta LocationMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "location %s", id)
	}
	loc.Name = meta.Name
	loc.City = meta.City
	loc.District = meta.District
	loc.Country = meta.Country
	loc.UpdatedAt = time.Now().UTC()
	return nil
}

// SetLocationType implements Store.
func (s *MemStore) SetLocationType(_ context.Context, id string, t Type, parentID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "location %s", id)
	}
	loc.Type = t
	loc.ParentID = parentID
	loc.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteLocation implements Store. References from children and markers are
// nulled, mirroring the relational ON DELETE SET NULL behavior.
func (s *MemStore) DeleteLocation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locations[id]; !ok {
		return nil
	}
	delete(s.locations, id)
	for i, lid := range s.locationOrder {
		if lid == id {
			s.locationOrder = append(s.locationOrder[:i], s.locationOrder[i+1:]...)
			break
		}
	}
	for _, loc := range s.locations {
		if loc.ParentID != nil && *loc.ParentID == id {
			loc.ParentID = nil
		}
	}
	for _, m := range s.markers {
		if m.LocationID != nil && *m.LocationID == id {
			m.LocationID = nil
		}
		if m.ParentID != nil && *m.ParentID == id {
			m.ParentID = nil
		}
	}
	return nil
}

// LocationIDExists implements Store.
func (s *MemStore) LocationIDExists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.locations[id]
	return ok, nil
}

// FindCityByName implements Store.
func (s *MemStore) FindCityByName(_ context.Context, city, country string) (*Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.locationOrder {
		loc := s.locations[id]
		if loc.Type == TypeCity && loc.City == city && loc.Country == country {
			cp := *loc
			return &cp, nil
		}
	}
	return nil, eris.Wrapf(ErrNotFound, "city %q", city)
}

// ListChildren implements Store.
func (s *MemStore) ListChildren(_ context.Context, parentID string) ([]Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var children []Location
	for _, id := range s.locationOrder {
		loc := s.locations[id]
		if loc.ParentID != nil && *loc.ParentID == parentID {
			children = append(children, *loc)
		}
	}
	return children, nil
}

// OrphanChildren implements Store.
func (s *MemStore) OrphanChildren(_ context.Context, parentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, loc := range s.locations {
		if loc.ParentID != nil && *loc.ParentID == parentID {
			loc.ParentID = nil
			loc.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

// CountLandmarkNamePrefix implements Store.
func (s *MemStore) CountLandmarkNamePrefix(_ context.Context, parentID, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, loc := range s.locations {
		if loc.Type == TypeLandmark && loc.ParentID != nil && *loc.ParentID == parentID &&
			strings.HasPrefix(loc.Name, prefix) {
			n++
		}
	}
	return n, nil
}

// ListOrphanLandmarks implements Store.
func (s *MemStore) ListOrphanLandmarks(_ context.Context) ([]Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orphans []Location
	for _, id := range s.locationOrder {
		loc := s.locations[id]
		if loc.Type == TypeLandmark && loc.ParentID == nil {
			orphans = append(orphans, *loc)
		}
	}
	return orphans, nil
}

// PutMarker implements Store.
func (s *MemStore) PutMarker(_ context.Context, m *Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	stored := *m
	if existing, ok := s.markers[m.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
		s.markerOrder = append(s.markerOrder, m.ID)
	}
	stored.UpdatedAt = now
	s.markers[m.ID] = &stored
	return nil
}

// GetMarker implements Store.
func (s *MemStore) GetMarker(_ context.Context, id string) (*Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "marker %s", id)
	}
	cp := *m
	return &cp, nil
}

// SetMarkerLocation implements Store.
func (s *MemStore) SetMarkerLocation(_ context.Context, markerID string, locationID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[markerID]
	if !ok {
		return eris.Wrapf(ErrNotFound, "marker %s", markerID)
	}
	m.LocationID = locationID
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteMarker implements Store.
func (s *MemStore) DeleteMarker(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markers[id]; !ok {
		return nil
	}
	delete(s.markers, id)
	for i, mid := range s.markerOrder {
		if mid == id {
			s.markerOrder = append(s.markerOrder[:i], s.markerOrder[i+1:]...)
			break
		}
	}
	return nil
}

// ReassignMarkers implements Store.
func (s *MemStore) ReassignMarkers(_ context.Context, fromID, toID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.markers {
		if m.LocationID != nil && *m.LocationID == fromID {
			to := toID
			m.LocationID = &to
			m.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

// MembersOf implements Store.
func (s *MemStore) MembersOf(_ context.Context, locationID string) ([]geo.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var points []geo.Point
	for _, id := range s.markerOrder {
		m := s.markers[id]
		if m.LocationID != nil && *m.LocationID == locationID {
			points = append(points, m.Point())
		}
	}
	return points, nil
}

// ListUnassignedMarkers implements Store.
func (s *MemStore) ListUnassignedMarkers(_ context.Context) ([]Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var markers []Marker
	for _, id := range s.markerOrder {
		m := s.markers[id]
		if m.LocationID == nil {
			markers = append(markers, *m)
		}
	}
	return markers, nil
}

// RecordRepairRun implements Store.
func (s *MemStore) RecordRepairRun(_ context.Context, run *RepairRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repairRuns = append(s.repairRuns, *run)
	return nil
}

// RepairRuns returns recorded repair runs, oldest first.
func (s *MemStore) RepairRuns() []RepairRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RepairRun(nil), s.repairRuns...)
}

// Stats implements Store.
func (s *MemStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &Stats{
		Locations: int64(len(s.locations)),
		Markers:   int64(len(s.markers)),
	}
	for _, loc := range s.locations {
		switch loc.Type {
		case TypeCity:
			st.Cities++
		case TypeLandmark:
			st.Landmarks++
			if loc.ParentID == nil {
				st.OrphanLandmarks++
			}
		}
	}
	for _, m := range s.markers {
		if m.LocationID == nil {
			st.UnassignedMarkers++
		}
	}
	return st, nil
}

// Close implements Store.
func (s *MemStore) Close() error { return nil }
