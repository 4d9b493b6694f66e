package cluster

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placemark/internal/geo"
	"github.com/sells-group/placemark/internal/location"
)

// MergeReport summarizes one merge sweep.
type MergeReport struct {
	Scanned int `json:"scanned" yaml:"scanned"`
	Merged  int `json:"merged" yaml:"merged"`
}

// Merger collapses duplicate clusters left behind by concurrent writers that
// the in-process cell locks cannot see (multiple processes, direct DB
// writes). Sweeps are idempotent and safe to re-run on a schedule.
type Merger struct {
	store      location.Store
	maintainer *Maintainer
}

// NewMerger creates a Merger.
func NewMerger(store location.Store, maintainer *Maintainer) *Merger {
	return &Merger{store: store, maintainer: maintainer}
}

// Sweep scans all locations in insertion order and merges every pair whose
// centroids lie within the clustering threshold: the younger location's
// markers move to the older one, its children are orphaned, and the emptied
// row is deleted by the recompute that follows.
func (m *Merger) Sweep(ctx context.Context) (*MergeReport, error) {
	locs, err := m.store.ListLocations(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "cluster: list locations for merge")
	}

	report := &MergeReport{Scanned: len(locs)}
	absorbed := map[string]bool{}

	// City locations are deduplicated by name, not proximity, and may hold no
	// markers of their own; they are never merge candidates.
	for i := 0; i < len(locs); i++ {
		if absorbed[locs[i].ID] || locs[i].Type == location.TypeCity {
			continue
		}
		for j := i + 1; j < len(locs); j++ {
			if absorbed[locs[j].ID] || locs[j].Type == location.TypeCity {
				continue
			}
			if geo.DistanceKm(locs[i].Point(), locs[j].Point()) > location.ThresholdKm {
				continue
			}

			if err := m.mergeInto(ctx, locs[i].ID, locs[j].ID); err != nil {
				return report, err
			}
			absorbed[locs[j].ID] = true
			report.Merged++

			// Later comparisons must see the survivor's post-merge centroid,
			// not the snapshot taken before the sweep started.
			if err := m.maintainer.Recompute(ctx, locs[i].ID); err != nil {
				return report, eris.Wrapf(err, "cluster: recompute survivor %s", locs[i].ID)
			}
			fresh, err := m.store.GetLocation(ctx, locs[i].ID)
			if err != nil {
				if eris.Is(err, location.ErrNotFound) {
					// Both sides were empty and the recompute retired the
					// survivor too.
					absorbed[locs[i].ID] = true
					break
				}
				return report, eris.Wrapf(err, "cluster: refresh survivor %s", locs[i].ID)
			}
			locs[i] = *fresh
		}
	}

	return report, nil
}

// mergeInto moves loserID's markers to winnerID and retires the loser.
func (m *Merger) mergeInto(ctx context.Context, winnerID, loserID string) error {
	moved, err := m.store.ReassignMarkers(ctx, loserID, winnerID)
	if err != nil {
		return eris.Wrapf(err, "cluster: move markers %s -> %s", loserID, winnerID)
	}

	if _, err := m.store.OrphanChildren(ctx, loserID); err != nil {
		return eris.Wrapf(err, "cluster: orphan children of %s", loserID)
	}

	if err := m.maintainer.Recompute(ctx, loserID); err != nil {
		return eris.Wrapf(err, "cluster: retire %s", loserID)
	}

	zap.L().Info("merged duplicate cluster",
		zap.String("winner", winnerID),
		zap.String("loser", loserID),
		zap.Int64("markers_moved", moved),
	)
	return nil
}
