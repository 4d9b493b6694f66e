// Package hierarchy enforces the city/landmark rules: parent validation, the
// type-transition state machine, and the orphan repair job.
package hierarchy

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placemark/internal/location"
)

// Manager applies type and parent transitions to locations while keeping the
// hierarchy invariants intact: only cities parent, nobody parents themselves,
// and a location that stops being a city never leaves dangling children.
type Manager struct {
	store location.Store
}

// NewManager returns a Manager backed by store.
func NewManager(store location.Store) *Manager {
	return &Manager{store: store}
}

// Apply executes a type/parent transition on the location identified by id and
// returns the ID of the location the caller should reference afterwards. For
// most transitions that is id itself; the two special cases redirect:
//
//   - landmark -> city with an existing parent resolves to the parent city's
//     ID instead of retyping the landmark in place.
//   - city -> landmark orphans the city's children and creates a fresh
//     auto-named landmark nested under the city, returning the new ID.
func (m *Manager) Apply(ctx context.Context, id string, change location.TypeChange) (string, error) {
	if err := change.Validate(); err != nil {
		return "", err
	}

	loc, err := m.store.GetLocation(ctx, id)
	if err != nil {
		return "", eris.Wrapf(err, "hierarchy: load %s", id)
	}

	if change.ParentID != nil {
		if err := m.validateParent(ctx, id, *change.ParentID); err != nil {
			return "", err
		}
	}

	switch {
	case loc.Type == location.TypeCity && change.Type == location.TypeUnset:
		return id, m.demoteCity(ctx, loc, location.TypeUnset, nil)

	case loc.Type == location.TypeCity && change.Type == location.TypeLandmark:
		return m.cityToLandmark(ctx, loc)

	case loc.Type == location.TypeLandmark && change.Type == location.TypeCity:
		return m.landmarkToCity(ctx, loc)

	default:
		if err := m.store.SetLocationType(ctx, id, change.Type, change.ParentID); err != nil {
			return "", eris.Wrapf(err, "hierarchy: set type on %s", id)
		}
		return id, nil
	}
}

// validateParent enforces the parent assignment rules. A missing parent is a
// not-found error; a non-city or self parent is an invalid-hierarchy error.
func (m *Manager) validateParent(ctx context.Context, id, parentID string) error {
	if parentID == id {
		return eris.Wrapf(location.ErrInvalidHierarchy, "%s cannot parent itself", id)
	}
	parent, err := m.store.GetLocation(ctx, parentID)
	if err != nil {
		return eris.Wrapf(err, "hierarchy: load parent %s", parentID)
	}
	if parent.Type != location.TypeCity {
		return eris.Wrapf(location.ErrInvalidHierarchy, "parent %s is %q, not a city", parentID, string(parent.Type))
	}
	return nil
}

// demoteCity strips the city type and orphans every child in the same
// operation so none is left pointing at a non-city parent.
func (m *Manager) demoteCity(ctx context.Context, loc *location.Location, to location.Type, parentID *string) error {
	orphaned, err := m.store.OrphanChildren(ctx, loc.ID)
	if err != nil {
		return eris.Wrapf(err, "hierarchy: orphan children of %s", loc.ID)
	}
	if err := m.store.SetLocationType(ctx, loc.ID, to, parentID); err != nil {
		return eris.Wrapf(err, "hierarchy: demote %s", loc.ID)
	}
	if orphaned > 0 {
		zap.L().Info("city demoted, children orphaned",
			zap.String("location_id", loc.ID),
			zap.Int64("orphaned", orphaned))
	}
	return nil
}

// cityToLandmark orphans the city's children, then creates a new landmark
// nested under the (still city-typed) location, auto-named "<city> <n>" with n
// counting existing landmarks under it sharing the city-name prefix.
func (m *Manager) cityToLandmark(ctx context.Context, loc *location.Location) (string, error) {
	prefix := CityKey(loc.City)
	if prefix == "" {
		prefix = CityKey(loc.Name)
	}
	// Count before orphaning so repeated transitions keep numbering forward.
	n, err := m.store.CountLandmarkNamePrefix(ctx, loc.ID, prefix)
	if err != nil {
		return "", eris.Wrapf(err, "hierarchy: count landmarks under %s", loc.ID)
	}

	if _, err := m.store.OrphanChildren(ctx, loc.ID); err != nil {
		return "", eris.Wrapf(err, "hierarchy: orphan children of %s", loc.ID)
	}

	parentID := loc.ID
	child := &location.Location{
		Lat:      loc.Lat,
		Lon:      loc.Lon,
		City:     loc.City,
		District: loc.District,
		Country:  loc.Country,
		Name:     fmt.Sprintf("%s %d", prefix, n+1),
		Type:     location.TypeLandmark,
		ParentID: &parentID,
	}
	childID, err := m.store.CreateLocation(ctx, child)
	if err != nil {
		return "", eris.Wrapf(err, "hierarchy: create landmark under %s", loc.ID)
	}
	zap.L().Info("created nested landmark",
		zap.String("city_id", loc.ID),
		zap.String("landmark_id", childID),
		zap.String("name", child.Name))
	return childID, nil
}

// landmarkToCity redirects to the landmark's existing parent city when it has
// one; a parentless landmark is promoted in place.
func (m *Manager) landmarkToCity(ctx context.Context, loc *location.Location) (string, error) {
	if loc.ParentID != nil {
		return *loc.ParentID, nil
	}
	if err := m.store.SetLocationType(ctx, loc.ID, location.TypeCity, nil); err != nil {
		return "", eris.Wrapf(err, "hierarchy: promote %s", loc.ID)
	}
	return loc.ID, nil
}
