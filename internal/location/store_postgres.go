package location

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/placemark/internal/db"
	"github.com/sells-group/placemark/internal/geo"
	"github.com/sells-group/placemark/internal/ident"
)

// PostgresStore implements Store using a Postgres connection pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgresStore creates a PostgresStore over an existing pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// NewPostgres connects a pool and wraps it in a PostgresStore.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool exposes the underlying pool for migrations and bulk imports.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const locationColumns = `id, latitude, longitude, city, district, country, name, type, parent_location_id, created_at, updated_at`

func scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	err := row.Scan(
		&l.ID, &l.Lat, &l.Lon, &l.City, &l.District, &l.Country,
		&l.Name, &l.Type, &l.ParentID, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLocation implements Store.
func (s *PostgresStore) CreateLocation(ctx context.Context, loc *Location) (string, error) {
	id, err := ident.GenerateUnique(func(candidate string) (bool, error) {
		return s.LocationIDExists(ctx, candidate)
	})
	if err != nil {
		return "", err
	}

	sql := `
		INSERT INTO locations (id, latitude, longitude, city, district, country, name, type, parent_location_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.pool.Exec(ctx, sql,
		id, loc.Lat, loc.Lon, loc.City, loc.District, loc.Country,
		loc.Name, loc.Type, loc.ParentID,
	)
	if err != nil {
		return "", eris.Wrap(err, "location: insert")
	}
	return id, nil
}

// GetLocation implements Store.
func (s *PostgresStore) GetLocation(ctx context.Context, id string) (*Location, error) {
	sql := `SELECT ` + locationColumns + ` FROM locations WHERE id = $1`
	l, err := scanLocation(s.pool.QueryRow(ctx, sql, id))
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "location %s", id)
		}
		return nil, eris.Wrap(err, "location: get")
	}
	return l, nil
}

// ListLocations implements Store.
func (s *PostgresStore) ListLocations(ctx context.Context) ([]Location, error) {
	sql := `SELECT ` + locationColumns + ` FROM locations ORDER BY created_at, id`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrap(err, "location: list")
	}
	defer rows.Close()
	return collectLocations(rows)
}

func collectLocations(rows pgx.Rows) ([]Location, error) {
	var locs []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "location: scan row")
		}
		locs = append(locs, *l)
	}
	return locs, rows.Err()
}

// FindWithin implements Store. The scan runs over all locations in insertion
// order and returns the first centroid within threshold; acceptable while the
// registry stays in the thousands of rows.
func (s *PostgresStore) FindWithin(ctx context.Context, p geo.Point, thresholdKm float64) (string, bool, error) {
	sql := `SELECT id, latitude, longitude FROM locations ORDER BY created_at, id`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return "", false, eris.Wrap(err, "location: find within")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var lat, lon float64
		if err := rows.Scan(&id, &lat, &lon); err != nil {
			return "", false, eris.Wrap(err, "location: scan find-within row")
		}
		if geo.DistanceKm(p, geo.Point{Lat: lat, Lon: lon}) <= thresholdKm {
			return id, true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, eris.Wrap(err, "location: iterate find-within rows")
	}
	return "", false, nil
}

// UpdateCentroid implements Store.
func (s *PostgresStore) UpdateCentroid(ctx context.Context, id string, p geo.Point) error {
	sql := `UPDATE locations SET latitude = $1, longitude = $2, updated_at = now() WHERE id = $3`
	tag, err := s.pool.Exec(ctx, sql, p.Lat, p.Lon, id)
	if err != nil {
		return eris.Wrap(err, "location: update centroid")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "location %s", id)
	}
	return nil
}

// UpdateLocationMeta implements Store.
func (s *PostgresStore) UpdateLocationMeta(ctx context.Context, id string, meta LocationMeta) error {
	sql := `
		UPDATE locations
		SET name = $1, city = $2, district = $3, country = $4, updated_at = now()
		WHERE id = $5
	`
	tag, err := s.pool.Exec(ctx, sql, meta.Name, meta.City, meta.District, meta.Country, id)
	if err != nil {
		return eris.Wrap(err, "location: update meta")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "location %s", id)
	}
	return nil
}

// SetLocationType implements Store.
func (s *PostgresStore) SetLocationType(ctx context.Context, id string, t Type, parentID *string) error {
	sql := `UPDATE locations SET type = $1, parent_location_id = $2, updated_at = now() WHERE id = $3`
	tag, err := s.pool.Exec(ctx, sql, t, parentID, id)
	if err != nil {
		return eris.Wrap(err, "location: set type")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "location %s", id)
	}
	return nil
}

// DeleteLocation implements Store.
func (s *PostgresStore) DeleteLocation(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
	return eris.Wrap(err, "location: delete")
}

// LocationIDExists implements Store.
func (s *PostgresStore) LocationIDExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "location: id exists")
	}
	return exists, nil
}

// FindCityByName implements Store.
func (s *PostgresStore) FindCityByName(ctx context.Context, city, country string) (*Location, error) {
	sql := `
		SELECT ` + locationColumns + `
		FROM locations
		WHERE type = 'city' AND city = $1 AND country = $2
		ORDER BY created_at, id
		LIMIT 1
	`
	l, err := scanLocation(s.pool.QueryRow(ctx, sql, city, country))
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "city %q", city)
		}
		return nil, eris.Wrap(err, "location: find city by name")
	}
	return l, nil
}

// ListChildren implements Store.
func (s *PostgresStore) ListChildren(ctx context.Context, parentID string) ([]Location, error) {
	sql := `SELECT ` + locationColumns + ` FROM locations WHERE parent_location_id = $1 ORDER BY created_at, id`
	rows, err := s.pool.Query(ctx, sql, parentID)
	if err != nil {
		return nil, eris.Wrap(err, "location: list children")
	}
	defer rows.Close()
	return collectLocations(rows)
}

// OrphanChildren implements Store.
func (s *PostgresStore) OrphanChildren(ctx context.Context, parentID string) (int64, error) {
	sql := `UPDATE locations SET parent_location_id = NULL, updated_at = now() WHERE parent_location_id = $1`
	tag, err := s.pool.Exec(ctx, sql, parentID)
	if err != nil {
		return 0, eris.Wrap(err, "location: orphan children")
	}
	return tag.RowsAffected(), nil
}

// CountLandmarkNamePrefix implements Store.
func (s *PostgresStore) CountLandmarkNamePrefix(ctx context.Context, parentID, prefix string) (int, error) {
	sql := `
		SELECT count(*) FROM locations
		WHERE parent_location_id = $1 AND type = 'landmark' AND name LIKE $2 || '%'
	`
	var n int
	if err := s.pool.QueryRow(ctx, sql, parentID, prefix).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "location: count landmark prefix")
	}
	return n, nil
}

// ListOrphanLandmarks implements Store.
func (s *PostgresStore) ListOrphanLandmarks(ctx context.Context) ([]Location, error) {
	sql := `
		SELECT ` + locationColumns + `
		FROM locations
		WHERE type = 'landmark' AND parent_location_id IS NULL
		ORDER BY created_at, id
	`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrap(err, "location: list orphan landmarks")
	}
	defer rows.Close()
	return collectLocations(rows)
}

// PutMarker implements Store.
func (s *PostgresStore) PutMarker(ctx context.Context, m *Marker) error {
	sql := `
		INSERT INTO markers (id, latitude, longitude, city, district, country, type, parent_location_id, location_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			city = EXCLUDED.city,
			district = EXCLUDED.district,
			country = EXCLUDED.country,
			type = EXCLUDED.type,
			parent_location_id = EXCLUDED.parent_location_id,
			location_id = EXCLUDED.location_id,
			updated_at = now()
	`
	_, err := s.pool.Exec(ctx, sql,
		m.ID, m.Lat, m.Lon, m.City, m.District, m.Country,
		m.Type, m.ParentID, m.LocationID,
	)
	return eris.Wrap(err, "location: put marker")
}

// GetMarker implements Store.
func (s *PostgresStore) GetMarker(ctx context.Context, id string) (*Marker, error) {
	sql := `
		SELECT id, latitude, longitude, city, district, country, type, parent_location_id, location_id, created_at, updated_at
		FROM markers WHERE id = $1
	`
	var m Marker
	err := s.pool.QueryRow(ctx, sql, id).Scan(
		&m.ID, &m.Lat, &m.Lon, &m.City, &m.District, &m.Country,
		&m.Type, &m.ParentID, &m.LocationID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "marker %s", id)
		}
		return nil, eris.Wrap(err, "location: get marker")
	}
	return &m, nil
}

// SetMarkerLocation implements Store.
func (s *PostgresStore) SetMarkerLocation(ctx context.Context, markerID string, locationID *string) error {
	sql := `UPDATE markers SET location_id = $1, updated_at = now() WHERE id = $2`
	tag, err := s.pool.Exec(ctx, sql, locationID, markerID)
	if err != nil {
		return eris.Wrap(err, "location: set marker location")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "marker %s", markerID)
	}
	return nil
}

// DeleteMarker implements Store.
func (s *PostgresStore) DeleteMarker(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM markers WHERE id = $1`, id)
	return eris.Wrap(err, "location: delete marker")
}

// ReassignMarkers implements Store.
func (s *PostgresStore) ReassignMarkers(ctx context.Context, fromID, toID string) (int64, error) {
	sql := `UPDATE markers SET location_id = $1, updated_at = now() WHERE location_id = $2`
	tag, err := s.pool.Exec(ctx, sql, toID, fromID)
	if err != nil {
		return 0, eris.Wrap(err, "location: reassign markers")
	}
	return tag.RowsAffected(), nil
}

// MembersOf implements Store.
func (s *PostgresStore) MembersOf(ctx context.Context, locationID string) ([]geo.Point, error) {
	sql := `SELECT latitude, longitude FROM markers WHERE location_id = $1 ORDER BY created_at, id`
	rows, err := s.pool.Query(ctx, sql, locationID)
	if err != nil {
		return nil, eris.Wrap(err, "location: members of")
	}
	defer rows.Close()

	var points []geo.Point
	for rows.Next() {
		var p geo.Point
		if err := rows.Scan(&p.Lat, &p.Lon); err != nil {
			return nil, eris.Wrap(err, "location: scan member row")
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ListUnassignedMarkers implements Store.
func (s *PostgresStore) ListUnassignedMarkers(ctx context.Context) ([]Marker, error) {
	sql := `
		SELECT id, latitude, longitude, city, district, country, type, parent_location_id, location_id, created_at, updated_at
		FROM markers WHERE location_id IS NULL ORDER BY created_at, id
	`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrap(err, "location: list unassigned markers")
	}
	defer rows.Close()

	var markers []Marker
	for rows.Next() {
		var m Marker
		if err := rows.Scan(
			&m.ID, &m.Lat, &m.Lon, &m.City, &m.District, &m.Country,
			&m.Type, &m.ParentID, &m.LocationID, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "location: scan marker row")
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

// RecordRepairRun implements Store.
func (s *PostgresStore) RecordRepairRun(ctx context.Context, run *RepairRun) error {
	sql := `
		INSERT INTO repair_runs (id, total_orphans, fixed, failed, cities_created, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, sql,
		run.ID, run.TotalOrphans, run.Fixed, run.Failed, run.CitiesCreated,
		run.StartedAt, run.FinishedAt,
	)
	return eris.Wrap(err, "location: record repair run")
}

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	sql := `
		SELECT
			(SELECT count(*) FROM locations),
			(SELECT count(*) FROM locations WHERE type = 'city'),
			(SELECT count(*) FROM locations WHERE type = 'landmark'),
			(SELECT count(*) FROM locations WHERE type = 'landmark' AND parent_location_id IS NULL),
			(SELECT count(*) FROM markers),
			(SELECT count(*) FROM markers WHERE location_id IS NULL)
	`
	var st Stats
	err := s.pool.QueryRow(ctx, sql).Scan(
		&st.Locations, &st.Cities, &st.Landmarks, &st.OrphanLandmarks,
		&st.Markers, &st.UnassignedMarkers,
	)
	if err != nil {
		return nil, eris.Wrap(err, "location: stats")
	}
	return &st, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
