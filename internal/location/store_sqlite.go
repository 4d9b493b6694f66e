package location

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/placemark/internal/geo"
	"github.com/sells-group/placemark/internal/ident"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// written from Go so they round-trip through the driver as time.Time.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite registry at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := database.Exec(pragma); err != nil {
			database.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: database}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS locations (
	id                 TEXT PRIMARY KEY,
	latitude           REAL NOT NULL,
	longitude          REAL NOT NULL,
	city               TEXT NOT NULL DEFAULT '',
	district           TEXT NOT NULL DEFAULT '',
	country            TEXT NOT NULL DEFAULT '',
	name               TEXT NOT NULL DEFAULT '',
	type               TEXT NOT NULL DEFAULT '',
	parent_location_id TEXT REFERENCES locations(id) ON DELETE SET NULL,
	created_at         TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS markers (
	id                 TEXT PRIMARY KEY,
	latitude           REAL NOT NULL,
	longitude          REAL NOT NULL,
	city               TEXT NOT NULL DEFAULT '',
	district           TEXT NOT NULL DEFAULT '',
	country            TEXT NOT NULL DEFAULT '',
	type               TEXT NOT NULL DEFAULT '',
	parent_location_id TEXT REFERENCES locations(id) ON DELETE SET NULL,
	location_id        TEXT REFERENCES locations(id) ON DELETE SET NULL,
	created_at         TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS repair_runs (
	id             TEXT PRIMARY KEY,
	total_orphans  INTEGER NOT NULL DEFAULT 0,
	fixed          INTEGER NOT NULL DEFAULT 0,
	failed         INTEGER NOT NULL DEFAULT 0,
	cities_created INTEGER NOT NULL DEFAULT 0,
	started_at     TIMESTAMP NOT NULL,
	finished_at    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_locations_parent ON locations(parent_location_id);
CREATE INDEX IF NOT EXISTS idx_locations_type ON locations(type);
CREATE INDEX IF NOT EXISTS idx_markers_location ON markers(location_id);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

const sqliteLocationColumns = `id, latitude, longitude, city, district, country, name, type, parent_location_id, created_at, updated_at`

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLocation(row sqliteScanner) (*Location, error) {
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
func (s *SQLiteStore) CreateLocation(ctx context.Context, loc *Location) (string, error) {
	id, err := ident.GenerateUnique(func(candidate string) (bool, error) {
		return s.LocationIDExists(ctx, candidate)
	})
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO locations (id, latitude, longitude, city, district, country, name, type, parent_location_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, loc.Lat, loc.Lon, loc.City, loc.District, loc.Country, loc.Name, string(loc.Type), loc.ParentID, now, now)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert location")
	}
	return id, nil
}

// GetLocation implements Store.
func (s *SQLiteStore) GetLocation(ctx context.Context, id string) (*Location, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteLocationColumns+` FROM locations WHERE id = ?`, id)
	l, err := scanSQLiteLocation(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "location %s", id)
		}
		return nil, eris.Wrap(err, "sqlite: get location")
	}
	return l, nil
}

// ListLocations implements Store.
func (s *SQLiteStore) ListLocations(ctx context.Context) ([]Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteLocationColumns+` FROM locations ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list locations")
	}
	defer rows.Close()
	return collectSQLiteLocations(rows)
}

func collectSQLiteLocations(rows *sql.Rows) ([]Location, error) {
	var locs []Location
	for rows.Next() {
		l, err := scanSQLiteLocation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan location row")
		}
		locs = append(locs, *l)
	}
	return locs, rows.Err()
}

// FindWithin implements Store, preserving first-match-in-insertion-order.
func (s *SQLiteStore) FindWithin(ctx context.Context, p geo.Point, thresholdKm float64) (string, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, latitude, longitude FROM locations ORDER BY created_at, id`)
	if err != nil {
		return "", false, eris.Wrap(err, "sqlite: find within")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var lat, lon float64
		if err := rows.Scan(&id, &lat, &lon); err != nil {
			return "", false, eris.Wrap(err, "sqlite: scan find-within row")
		}
		if geo.DistanceKm(p, geo.Point{Lat: lat, Lon: lon}) <= thresholdKm {
			return id, true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, eris.Wrap(err, "sqlite: iterate find-within rows")
	}
	return "", false, nil
}

// UpdateCentroid implements Store.
func (s *SQLiteStore) UpdateCentroid(ctx context.Context, id string, p geo.Point) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE locations SET latitude = ?, longitude = ?, updated_at = ? WHERE id = ?`,
		p.Lat, p.Lon, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrap(err, "sqlite: update centroid")
	}
	return requireRow(res, id)
}

// UpdateLocationMeta implements Store.
func (s *SQLiteStore) UpdateLocationMeta(ctx context.Context, id string, meta LocationMeta) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE locations SET name = ?, city = ?, district = ?, country = ?, updated_at = ? WHERE id = ?`,
		meta.Name, meta.City, meta.District, meta.Country, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrap(err, "sqlite: update meta")
	}
	return requireRow(res, id)
}

// SetLocationType implements Store.
func (s *SQLiteStore) SetLocationType(ctx context.Context, id string, t Type, parentID *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE locations SET type = ?, parent_location_id = ?, updated_at = ? WHERE id = ?`,
		string(t), parentID, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrap(err, "sqlite: set location type")
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "location %s", id)
	}
	return nil
}

// DeleteLocation implements Store.
func (s *SQLiteStore) DeleteLocation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: delete location")
}

// LocationIDExists implements Store.
func (s *SQLiteStore) LocationIDExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM locations WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: id exists")
	}
	return exists, nil
}

// FindCityByName implements Store.
func (s *SQLiteStore) FindCityByName(ctx context.Context, city, country string) (*Location, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteLocationColumns+`
		FROM locations
		WHERE type = 'city' AND city = ? AND country = ?
		ORDER BY created_at, id
		LIMIT 1
	`, city, country)
	l, err := scanSQLiteLocation(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "city %q", city)
		}
		return nil, eris.Wrap(err, "sqlite: find city by name")
	}
	return l, nil
}

// ListChildren implements Store.
func (s *SQLiteStore) ListChildren(ctx context.Context, parentID string) ([]Location, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteLocationColumns+` FROM locations WHERE parent_location_id = ? ORDER BY created_at, id`,
		parentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list children")
	}
	defer rows.Close()
	return collectSQLiteLocations(rows)
}

// OrphanChildren implements Store.
func (s *SQLiteStore) OrphanChildren(ctx context.Context, parentID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE locations SET parent_location_id = NULL, updated_at = ? WHERE parent_location_id = ?`,
		time.Now().UTC(), parentID)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: orphan children")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, nil
}

// CountLandmarkNamePrefix implements Store.
func (s *SQLiteStore) CountLandmarkNamePrefix(ctx context.Context, parentID, prefix string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM locations
		WHERE parent_location_id = ? AND type = 'landmark' AND name LIKE ? || '%'
	`, parentID, prefix).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: count landmark prefix")
	}
	return n, nil
}

// ListOrphanLandmarks implements Store.
func (s *SQLiteStore) ListOrphanLandmarks(ctx context.Context) ([]Location, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteLocationColumns+`
		FROM locations
		WHERE type = 'landmark' AND parent_location_id IS NULL
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list orphan landmarks")
	}
	defer rows.Close()
	return collectSQLiteLocations(rows)
}

// PutMarker implements Store.
func (s *SQLiteStore) PutMarker(ctx context.Context, m *Marker) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markers (id, latitude, longitude, city, district, country, type, parent_location_id, location_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			city = excluded.city,
			district = excluded.district,
			country = excluded.country,
			type = excluded.type,
			parent_location_id = excluded.parent_location_id,
			location_id = excluded.location_id,
			updated_at = excluded.updated_at
	`, m.ID, m.Lat, m.Lon, m.City, m.District, m.Country, string(m.Type), m.ParentID, m.LocationID, now, now)
	return eris.Wrap(err, "sqlite: put marker")
}

// GetMarker implements Store.
func (s *SQLiteStore) GetMarker(ctx context.Context, id string) (*Marker, error) {
	var m Marker
	err := s.db.QueryRowContext(ctx, `
		SELECT id, latitude, longitude, city, district, country, type, parent_location_id, location_id, created_at, updated_at
		FROM markers WHERE id = ?
	`, id).Scan(
		&m.ID, &m.Lat, &m.Lon, &m.City, &m.District, &m.Country,
		&m.Type, &m.ParentID, &m.LocationID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "marker %s", id)
		}
		return nil, eris.Wrap(err, "sqlite: get marker")
	}
	return &m, nil
}

// SetMarkerLocation implements Store.
func (s *SQLiteStore) SetMarkerLocation(ctx context.Context, markerID string, locationID *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE markers SET location_id = ?, updated_at = ? WHERE id = ?`,
		locationID, time.Now().UTC(), markerID)
	if err != nil {
		return eris.Wrap(err, "sqlite: set marker location")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "marker %s", markerID)
	}
	return nil
}

// DeleteMarker implements Store.
func (s *SQLiteStore) DeleteMarker(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM markers WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: delete marker")
}

// ReassignMarkers implements Store.
func (s *SQLiteStore) ReassignMarkers(ctx context.Context, fromID, toID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE markers SET location_id = ?, updated_at = ? WHERE location_id = ?`,
		toID, time.Now().UTC(), fromID)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reassign markers")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, nil
}

// MembersOf implements Store.
func (s *SQLiteStore) MembersOf(ctx context.Context, locationID string) ([]geo.Point, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT latitude, longitude FROM markers WHERE location_id = ? ORDER BY created_at, id`,
		locationID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: members of")
	}
	defer rows.Close()

	var points []geo.Point
	for rows.Next() {
		var p geo.Point
		if err := rows.Scan(&p.Lat, &p.Lon); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan member row")
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ListUnassignedMarkers implements Store.
func (s *SQLiteStore) ListUnassignedMarkers(ctx context.Context) ([]Marker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, latitude, longitude, city, district, country, type, parent_location_id, location_id, created_at, updated_at
		FROM markers WHERE location_id IS NULL ORDER BY created_at, id
	`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unassigned markers")
	}
	defer rows.Close()

	var markers []Marker
	for rows.Next() {
		var m Marker
		if err := rows.Scan(
			&m.ID, &m.Lat, &m.Lon, &m.City, &m.District, &m.Country,
			&m.Type, &m.ParentID, &m.LocationID, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan marker row")
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

// RecordRepairRun implements Store.
func (s *SQLiteStore) RecordRepairRun(ctx context.Context, run *RepairRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repair_runs (id, total_orphans, fixed, failed, cities_created, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.TotalOrphans, run.Fixed, run.Failed, run.CitiesCreated, run.StartedAt, run.FinishedAt)
	return eris.Wrap(err, "sqlite: record repair run")
}

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM locations),
			(SELECT count(*) FROM locations WHERE type = 'city'),
			(SELECT count(*) FROM locations WHERE type = 'landmark'),
			(SELECT count(*) FROM locations WHERE type = 'landmark' AND parent_location_id IS NULL),
			(SELECT count(*) FROM markers),
			(SELECT count(*) FROM markers WHERE location_id IS NULL)
	`).Scan(
		&st.Locations, &st.Cities, &st.Landmarks, &st.OrphanLandmarks,
		&st.Markers, &st.UnassignedMarkers,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	return &st, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
