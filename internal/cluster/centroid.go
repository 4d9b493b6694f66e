package cluster

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placemark/internal/geo"
	"github.com/sells-group/placemark/internal/location"
)

// Maintainer keeps location centroids equal to the mean of their member
// markers and removes locations whose last member is gone. Every membership
// mutation funnels through here; call sites never update centroids directly.
type Maintainer struct {
	store location.Store
}

// NewMaintainer creates a Maintainer over the given registry.
func NewMaintainer(store location.Store) *Maintainer {
	return &Maintainer{store: store}
}

// Recompute refetches the location's members and persists their centroid, or
// deletes the location when no members remain.
func (m *Maintainer) Recompute(ctx context.Context, locationID string) error {
	members, err := m.store.MembersOf(ctx, locationID)
	if err != nil {
		return eris.Wrapf(err, "cluster: members of %s", locationID)
	}

	if len(members) == 0 {
		zap.L().Debug("deleting empty location", zap.String("location_id", locationID))
		if err := m.store.DeleteLocation(ctx, locationID); err != nil {
			return eris.Wrapf(err, "cluster: delete empty location %s", locationID)
		}
		return nil
	}

	c := geo.Centroid(members)
	if err := m.store.UpdateCentroid(ctx, locationID, c); err != nil {
		return eris.Wrapf(err, "cluster: update centroid of %s", locationID)
	}
	return nil
}
