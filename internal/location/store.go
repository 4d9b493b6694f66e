package location

import (
	"context"

	"github.com/sells-group/placemark/internal/geo"
)

// Store is the persistence contract for the location registry and the marker
// pointers it maintains. One Store instance is constructed at startup and
// passed by dependency injection into every component; nothing reaches for an
// ambient global.
type Store interface {
	// CreateLocation inserts a new location with a freshly generated unique
	// 8-character ID and returns it. The caller-supplied ID field is ignored.
	CreateLocation(ctx context.Context, loc *Location) (string, error)

	// GetLocation retrieves a location by ID. Returns ErrNotFound if absent.
	GetLocation(ctx context.Context, id string) (*Location, error)

	// ListLocations returns every location in insertion order.
	ListLocations(ctx context.Context) ([]Location, error)

	// FindWithin returns the ID of the first location, in insertion order,
	// whose stored centroid lies within thresholdKm of p. This is first-match,
	// not nearest-match: switching to nearest would silently change cluster
	// membership for existing data, so the policy is preserved as-is.
	FindWithin(ctx context.Context, p geo.Point, thresholdKm float64) (string, bool, error)

	// UpdateCentroid persists a recomputed centroid.
	UpdateCentroid(ctx context.Context, id string, p geo.Point) error

	// UpdateLocationMeta updates the user-editable metadata fields.
	UpdateLocationMeta(ctx context.Context, id string, meta LocationMeta) error

	// SetLocationType persists a type/parent transition. Hierarchy rules are
	// enforced by hierarchy.Manager before this is called.
	SetLocationType(ctx context.Context, id string, t Type, parentID *string) error

	// DeleteLocation removes a location row.
	DeleteLocation(ctx context.Context, id string) error

	// LocationIDExists reports whether an ID is already taken.
	LocationIDExists(ctx context.Context, id string) (bool, error)

	// FindCityByName returns the first city-typed location exactly matching
	// the given city and country strings, or ErrNotFound.
	FindCityByName(ctx context.Context, city, country string) (*Location, error)

	// ListChildren returns the locations whose ParentID equals parentID.
	ListChildren(ctx context.Context, parentID string) ([]Location, error)

	// OrphanChildren nulls the ParentID of every child of parentID and
	// returns how many rows changed.
	OrphanChildren(ctx context.Context, parentID string) (int64, error)

	// CountLandmarkNamePrefix counts landmarks under parentID whose name
	// starts with prefix. Used to auto-number nested landmarks.
	CountLandmarkNamePrefix(ctx context.Context, parentID, prefix string) (int, error)

	// ListOrphanLandmarks returns landmark-typed locations with no parent.
	ListOrphanLandmarks(ctx context.Context) ([]Location, error)

	// PutMarker inserts or replaces a marker row.
	PutMarker(ctx context.Context, m *Marker) error

	// GetMarker retrieves a marker by ID. Returns ErrNotFound if absent.
	GetMarker(ctx context.Context, id string) (*Marker, error)

	// SetMarkerLocation points a marker at a location (or nil to detach).
	SetMarkerLocation(ctx context.Context, markerID string, locationID *string) error

	// DeleteMarker removes a marker row.
	DeleteMarker(ctx context.Context, id string) error

	// ReassignMarkers points every marker referencing fromID at toID and
	// returns how many moved. Used by the duplicate-cluster merge job.
	ReassignMarkers(ctx context.Context, fromID, toID string) (int64, error)

	// MembersOf returns the coordinates of every marker pointing at the
	// location.
	MembersOf(ctx context.Context, locationID string) ([]geo.Point, error)

	// ListUnassignedMarkers returns markers with no location pointer.
	ListUnassignedMarkers(ctx context.Context) ([]Marker, error)

	// RecordRepairRun persists the outcome of an orphan repair run.
	RecordRepairRun(ctx context.Context, run *RepairRun) error

	// Stats returns registry counts.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the underlying connections.
	Close() error
}
