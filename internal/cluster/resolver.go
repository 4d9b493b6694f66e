// Package cluster resolves markers into canonical locations and keeps the
// cluster geometry consistent as markers move and disappear.
package cluster

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placemark/internal/geo"
	"github.com/sells-group/placemark/internal/location"
)

// moveThresholdDeg is the cheap pre-check applied before re-resolving a moved
// marker. 0.002° is roughly 200 m of latitude; moves under it only shift the
// existing cluster's centroid and never migrate the marker.
const moveThresholdDeg = 0.002

// ErrResolutionFailed marks registry I/O failures during assign or
// reassignment. Callers recover from it locally: a marker without a location
// is a valid, if degraded, state.
var ErrResolutionFailed = eris.New("cluster: resolution failed")

// Resolver finds or creates the owning location for a marker's coordinates.
type Resolver struct {
	store      location.Store
	maintainer *Maintainer
	locks      *cellLocks
}

// NewResolver creates a Resolver. The maintainer is invoked after every
// assignment so centroids are never left stale.
func NewResolver(store location.Store, maintainer *Maintainer) *Resolver {
	return &Resolver{
		store:      store,
		maintainer: maintainer,
		locks:      newCellLocks(),
	}
}

// Assign resolves the owning location for a marker at p and persists the
// marker's location pointer. An existing location within the clustering
// threshold is reused; otherwise a new one is created, nested under a
// found-or-created city when a city name is supplied. The resolved location's
// centroid is recomputed unconditionally, which keeps the code path uniform
// and picks up concurrent membership changes.
func (r *Resolver) Assign(ctx context.Context, markerID string, p geo.Point, city, district, country string) (string, error) {
	unlock := r.locks.lockAround(p)
	defer unlock()

	id, found, err := r.store.FindWithin(ctx, p, location.ThresholdKm)
	if err != nil {
		return "", eris.Wrapf(ErrResolutionFailed, "find within for marker %s: %s", markerID, err)
	}

	if !found {
		id, err = r.createLocation(ctx, p, city, district, country)
		if err != nil {
			return "", err
		}
		zap.L().Info("created location",
			zap.String("location_id", id),
			zap.String("marker_id", markerID),
			zap.String("city", city),
		)
	}

	if err := r.store.SetMarkerLocation(ctx, markerID, &id); err != nil {
		return "", eris.Wrapf(ErrResolutionFailed, "point marker %s at %s: %s", markerID, id, err)
	}

	if err := r.maintainer.Recompute(ctx, id); err != nil {
		return "", eris.Wrapf(ErrResolutionFailed, "recompute %s: %s", id, err)
	}

	return id, nil
}

// createLocation derives a new location for an unmatched point. With a city
// name present, the point becomes a landmark under a found-or-created city
// location (deduplicated by exact city string match); otherwise it is a bare
// location with no hierarchy placement.
func (r *Resolver) createLocation(ctx context.Context, p geo.Point, city, district, country string) (string, error) {
	loc := &location.Location{
		Lat:      p.Lat,
		Lon:      p.Lon,
		City:     city,
		District: district,
		Country:  country,
	}

	if city != "" {
		parentID, err := r.findOrCreateCity(ctx, p, city, district, country)
		if err != nil {
			return "", err
		}
		loc.Type = location.TypeLandmark
		loc.ParentID = &parentID
	}

	id, err := r.store.CreateLocation(ctx, loc)
	if err != nil {
		return "", eris.Wrapf(ErrResolutionFailed, "create location: %s", err)
	}
	return id, nil
}

func (r *Resolver) findOrCreateCity(ctx context.Context, p geo.Point, city, district, country string) (string, error) {
	existing, err := r.store.FindCityByName(ctx, city, country)
	if err == nil {
		return existing.ID, nil
	}
	if !eris.Is(err, location.ErrNotFound) {
		return "", eris.Wrapf(ErrResolutionFailed, "find city %q: %s", city, err)
	}

	id, err := r.store.CreateLocation(ctx, &location.Location{
		Lat:      p.Lat,
		Lon:      p.Lon,
		City:     city,
		District: district,
		Country:  country,
		Type:     location.TypeCity,
	})
	if err != nil {
		return "", eris.Wrapf(ErrResolutionFailed, "create city %q: %s", city, err)
	}
	zap.L().Info("created city location", zap.String("location_id", id), zap.String("city", city))
	return id, nil
}

// Reassign handles a marker's coordinate change. A move beyond the pre-check
// threshold re-resolves the marker at its new coordinates and then recomputes
// (and possibly deletes) the old location; a smaller move only recomputes the
// marker's current location, avoiding needless cluster migration for trivial
// corrections.
func (r *Resolver) Reassign(ctx context.Context, markerID string, oldP, newP geo.Point, city, district, country string) (string, error) {
	m, err := r.store.GetMarker(ctx, markerID)
	if err != nil {
		return "", eris.Wrapf(ErrResolutionFailed, "get marker %s: %s", markerID, err)
	}
	oldLocationID := m.LocationID

	if math.Abs(newP.Lat-oldP.Lat) <= moveThresholdDeg && math.Abs(newP.Lon-oldP.Lon) <= moveThresholdDeg {
		if oldLocationID == nil {
			// Never resolved (e.g. a prior failure was recovered locally);
			// a move is a fresh chance to assign.
			return r.Assign(ctx, markerID, newP, city, district, country)
		}
		if err := r.maintainer.Recompute(ctx, *oldLocationID); err != nil {
			return "", eris.Wrapf(ErrResolutionFailed, "recompute %s: %s", *oldLocationID, err)
		}
		return *oldLocationID, nil
	}

	newID, err := r.Assign(ctx, markerID, newP, city, district, country)
	if err != nil {
		return "", err
	}

	if oldLocationID != nil && *oldLocationID != newID {
		if err := r.maintainer.Recompute(ctx, *oldLocationID); err != nil {
			return "", eris.Wrapf(ErrResolutionFailed, "recompute old %s: %s", *oldLocationID, err)
		}
	}
	return newID, nil
}
