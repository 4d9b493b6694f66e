// Package ingest is the event-facing façade of the engine: it reacts to
// marker lifecycle events and location hierarchy changes, applying the
// recovery policy at the boundary. Registry failures during cluster
// resolution are recovered locally — the marker persists without a location
// and a later event retries — while hierarchy violations surface to the
// caller, who supplied the invalid input.
package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placemark/internal/cluster"
	"github.com/sells-group/placemark/internal/hierarchy"
	"github.com/sells-group/placemark/internal/location"
)

// Service wires the resolver, centroid maintainer, hierarchy manager, and
// repairer behind the event handlers the outer CRUD layer calls.
type Service struct {
	store      location.Store
	resolver   *cluster.Resolver
	maintainer *cluster.Maintainer
	manager    *hierarchy.Manager
	repairer   *hierarchy.Repairer
}

// NewService builds a Service on top of store.
func NewService(store location.Store) *Service {
	maintainer := cluster.NewMaintainer(store)
	return &Service{
		store:      store,
		resolver:   cluster.NewResolver(store, maintainer),
		maintainer: maintainer,
		manager:    hierarchy.NewManager(store),
		repairer:   hierarchy.NewRepairer(store),
	}
}

// MarkerCreated persists a new marker and resolves its location. Resolution
// failures are logged and recovered: the marker stays unassigned until a
// later move or import sweep retries it.
func (s *Service) MarkerCreated(ctx context.Context, m *location.Marker) error {
	normalizeMarker(m)
	if err := s.store.PutMarker(ctx, m); err != nil {
		return eris.Wrapf(err, "ingest: persist marker %s", m.ID)
	}

	if _, err := s.resolver.Assign(ctx, m.ID, m.Point(), m.City, m.District, m.Country); err != nil {
		zap.L().Warn("marker left unassigned after failed resolution",
			zap.String("marker_id", m.ID),
			zap.Error(err))
	}
	return nil
}

// MarkerMoved persists a marker's new coordinates and re-resolves its
// location. An unknown marker is treated as freshly created, so out-of-order
// events converge. Resolution failures are recovered like in MarkerCreated.
func (s *Service) MarkerMoved(ctx context.Context, m *location.Marker) error {
	normalizeMarker(m)

	existing, err := s.store.GetMarker(ctx, m.ID)
	if err != nil {
		if eris.Is(err, location.ErrNotFound) {
			return s.MarkerCreated(ctx, m)
		}
		return eris.Wrapf(err, "ingest: load marker %s", m.ID)
	}
	oldP := existing.Point()
	// Move events carry coordinates only; keep the assignment and taxonomy
	// the registry already holds for this marker.
	m.LocationID = existing.LocationID
	m.Type = existing.Type
	m.ParentID = existing.ParentID

	if err := s.store.PutMarker(ctx, m); err != nil {
		return eris.Wrapf(err, "ingest: persist marker %s", m.ID)
	}

	if _, err := s.resolver.Reassign(ctx, m.ID, oldP, m.Point(), m.City, m.District, m.Country); err != nil {
		zap.L().Warn("marker move left cluster state stale",
			zap.String("marker_id", m.ID),
			zap.Error(err))
	}
	return nil
}

// MarkerDeleted removes the marker and refreshes (or deletes, when it emptied)
// the location it belonged to. Deleting an unknown marker is a no-op, and a
// failed recompute after the delete is logged rather than surfaced: the
// marker is already gone and the merge sweep repairs stale geometry later.
func (s *Service) MarkerDeleted(ctx context.Context, markerID string) error {
	m, err := s.store.GetMarker(ctx, markerID)
	if err != nil {
		if eris.Is(err, location.ErrNotFound) {
			return nil
		}
		return eris.Wrapf(err, "ingest: load marker %s", markerID)
	}
	oldLocationID := m.LocationID

	if err := s.store.DeleteMarker(ctx, markerID); err != nil {
		return eris.Wrapf(err, "ingest: delete marker %s", markerID)
	}

	if oldLocationID != nil {
		if err := s.maintainer.Recompute(ctx, *oldLocationID); err != nil {
			zap.L().Warn("centroid refresh failed after marker delete",
				zap.String("marker_id", markerID),
				zap.String("location_id", *oldLocationID),
				zap.Error(err))
		}
	}
	return nil
}

// LocationChanged applies a type/parent transition and returns the ID of the
// location that now represents the request. Validation errors surface to the
// caller unwrapped, so they can be mapped to a client error.
func (s *Service) LocationChanged(ctx context.Context, locationID string, change location.TypeChange) (string, error) {
	return s.manager.Apply(ctx, locationID, change)
}

// RunOrphanRepair executes one orphan repair pass and returns its report.
func (s *Service) RunOrphanRepair(ctx context.Context) (*hierarchy.Report, error) {
	return s.repairer.Run(ctx)
}

// ResolveUnassigned retries resolution for every marker without a location,
// in insertion order. Used after bulk imports and as a recovery sweep.
// Returns how many markers were assigned; per-marker failures are logged and
// skipped.
func (s *Service) ResolveUnassigned(ctx context.Context) (int, error) {
	markers, err := s.store.ListUnassignedMarkers(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "ingest: list unassigned markers")
	}

	assigned := 0
	for i := range markers {
		m := &markers[i]
		if _, err := s.resolver.Assign(ctx, m.ID, m.Point(), m.City, m.District, m.Country); err != nil {
			zap.L().Warn("sweep could not assign marker",
				zap.String("marker_id", m.ID),
				zap.Error(err))
			continue
		}
		assigned++
	}
	return assigned, nil
}

// normalizeMarker canonicalizes the free-text place fields once, at the
// boundary, so exact-match lookups downstream never see accent or whitespace
// variants.
func normalizeMarker(m *location.Marker) {
	m.City = hierarchy.CityKey(m.City)
	m.District = hierarchy.CityKey(m.District)
	m.Country = hierarchy.CityKey(m.Country)
}
