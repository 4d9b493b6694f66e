package hierarchy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placemark/internal/location"
)

// Unresolved describes an orphan the repair job could not place, with enough
// context for a human to fix by hand.
type Unresolved struct {
	LocationID string `json:"location_id" yaml:"location_id"`
	Reason     string `json:"reason" yaml:"reason"`
}

// Report is the outcome of one orphan repair run.
type Report struct {
	RunID         string       `json:"run_id" yaml:"run_id"`
	TotalOrphans  int          `json:"total_orphans" yaml:"total_orphans"`
	Fixed         int          `json:"fixed" yaml:"fixed"`
	Failed        int          `json:"failed" yaml:"failed"`
	CitiesCreated int          `json:"cities_created" yaml:"cities_created"`
	Unresolved    []Unresolved `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
	StartedAt     time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time    `json:"finished_at" yaml:"finished_at"`
}

// Repairer re-attaches parentless landmarks to their city, creating the city
// when no exact match exists. Runs are idempotent: a second run over the same
// data finds nothing left to fix.
type Repairer struct {
	store location.Store
}

// NewRepairer returns a Repairer backed by store.
func NewRepairer(store location.Store) *Repairer {
	return &Repairer{store: store}
}

// Run scans every orphan landmark and repairs what it can. Per-orphan failures
// are counted and reported, never fatal; only listing the orphans or recording
// the run itself aborts the job.
func (r *Repairer) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	orphans, err := r.store.ListOrphanLandmarks(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "repair: list orphan landmarks")
	}
	report.TotalOrphans = len(orphans)

	for i := range orphans {
		r.repairOne(ctx, &orphans[i], report)
	}

	report.FinishedAt = time.Now().UTC()
	run := &location.RepairRun{
		ID:            report.RunID,
		TotalOrphans:  report.TotalOrphans,
		Fixed:         report.Fixed,
		Failed:        report.Failed,
		CitiesCreated: report.CitiesCreated,
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
	}
	if err := r.store.RecordRepairRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "repair: record run")
	}

	zap.L().Info("orphan repair finished",
		zap.String("run_id", report.RunID),
		zap.Int("total", report.TotalOrphans),
		zap.Int("fixed", report.Fixed),
		zap.Int("failed", report.Failed),
		zap.Int("cities_created", report.CitiesCreated))
	return report, nil
}

func (r *Repairer) repairOne(ctx context.Context, orphan *location.Location, report *Report) {
	city := CityKey(orphan.City)
	country := CityKey(orphan.Country)
	if city == "" && country == "" {
		report.Failed++
		report.Unresolved = append(report.Unresolved, Unresolved{
			LocationID: orphan.ID,
			Reason:     "no city or country on record",
		})
		zap.L().Warn("orphan landmark has no city or country",
			zap.String("location_id", orphan.ID))
		return
	}

	parentID, err := r.findOrCreateCity(ctx, orphan, city, country, report)
	if err != nil {
		report.Failed++
		report.Unresolved = append(report.Unresolved, Unresolved{
			LocationID: orphan.ID,
			Reason:     err.Error(),
		})
		zap.L().Warn("could not resolve city for orphan",
			zap.String("location_id", orphan.ID),
			zap.Error(err))
		return
	}

	if err := r.store.SetLocationType(ctx, orphan.ID, location.TypeLandmark, &parentID); err != nil {
		report.Failed++
		report.Unresolved = append(report.Unresolved, Unresolved{
			LocationID: orphan.ID,
			Reason:     err.Error(),
		})
		zap.L().Warn("could not attach orphan to city",
			zap.String("location_id", orphan.ID),
			zap.String("city_id", parentID),
			zap.Error(err))
		return
	}
	report.Fixed++
}

// findOrCreateCity returns the ID of the city exactly matching (city, country),
// creating it at the orphan's coordinates when no match exists.
func (r *Repairer) findOrCreateCity(ctx context.Context, orphan *location.Location, city, country string, report *Report) (string, error) {
	existing, err := r.store.FindCityByName(ctx, city, country)
	if err == nil {
		return existing.ID, nil
	}
	if !eris.Is(err, location.ErrNotFound) {
		return "", eris.Wrapf(err, "look up city %q", city)
	}

	created := &location.Location{
		Lat:     orphan.Lat,
		Lon:     orphan.Lon,
		City:    city,
		Country: country,
		Name:    city,
		Type:    location.TypeCity,
	}
	id, err := r.store.CreateLocation(ctx, created)
	if err != nil {
		return "", eris.Wrapf(err, "create city %q", city)
	}
	report.CitiesCreated++
	zap.L().Info("created city for orphan repair",
		zap.String("city_id", id),
		zap.String("city", city),
		zap.String("country", country))
	return id, nil
}
