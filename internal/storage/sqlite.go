package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"smilebus_ingest/internal/smilebus"
)

// SQLiteStore wraps a SQLite database holding the normalized catalog.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	// Foreign keys and busy timeout are per-connection settings, so they
	// go in the DSN rather than a one-off Exec against the pool.
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: the catalog has exactly one writer at a time, and
	// a single conn makes that serialization explicit instead of leaning
	// on SQLite's own locking.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSchema creates the catalog tables and indexes.
func (s *SQLiteStore) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cities (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT,
		is_waypoint INTEGER NOT NULL DEFAULT 0,
		is_top INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS stops (
		id INTEGER PRIMARY KEY,
		city_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		gps TEXT,
		photo_url TEXT,
		order_num INTEGER,
		is_default INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (city_id) REFERENCES cities (id)
	);

	CREATE TABLE IF NOT EXISTS routes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_city_id INTEGER NOT NULL,
		to_city_id INTEGER NOT NULL,
		from_stop_id INTEGER,
		to_stop_id INTEGER,
		FOREIGN KEY (from_city_id) REFERENCES cities (id),
		FOREIGN KEY (to_city_id) REFERENCES cities (id),
		FOREIGN KEY (from_stop_id) REFERENCES stops (id),
		FOREIGN KEY (to_stop_id) REFERENCES stops (id)
	);

	CREATE INDEX IF NOT EXISTS idx_cities_slug ON cities (slug);
	CREATE INDEX IF NOT EXISTS idx_stops_city_id ON stops (city_id);
	CREATE INDEX IF NOT EXISTS idx_routes_from_to ON routes (from_city_id, to_city_id);

	-- Logical route identity. NULL stop ids would make a plain UNIQUE
	-- index treat every row as distinct, so they are collapsed to -1.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_routes_identity
		ON routes (from_city_id, to_city_id, COALESCE(from_stop_id, -1), COALESCE(to_stop_id, -1));
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ApplyCatalog persists one fetched catalog inside a single transaction.
// Cities and stops go in before the routes that reference them so the
// foreign keys hold at every point.
func (s *SQLiteStore) ApplyCatalog(ctx context.Context, fromCityID int64, cities []smilebus.City) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// The origin city may not have been seen as a destination yet. A
	// placeholder row satisfies the route foreign key and is overwritten
	// once some sweep returns the city as a destination.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cities (id, name) VALUES (?, '')
		ON CONFLICT(id) DO NOTHING
	`, fromCityID)
	if err != nil {
		return fmt.Errorf("ensure origin city %d: %w", fromCityID, err)
	}

	for i := range cities {
		city := &cities[i]

		// Last write wins for a city seen from several origins. A plain
		// INSERT OR REPLACE would delete and re-insert the row, tripping
		// the foreign keys of stops already attached to it.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cities (id, name, slug, is_waypoint, is_top)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				slug = excluded.slug,
				is_waypoint = excluded.is_waypoint,
				is_top = excluded.is_top
		`, int64(city.ID), city.Name, city.Slug, bool(city.IsWaypoint), bool(city.IsTop))
		if err != nil {
			return fmt.Errorf("upsert city %d: %w", city.ID, err)
		}

		for j := range city.Stops {
			stop := &city.Stops[j]
			_, err := tx.ExecContext(ctx, `
				INSERT INTO stops (id, city_id, title, gps, photo_url, order_num, is_default)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					city_id = excluded.city_id,
					title = excluded.title,
					gps = excluded.gps,
					photo_url = excluded.photo_url,
					order_num = excluded.order_num,
					is_default = excluded.is_default
			`, int64(stop.ID), int64(city.ID), stop.Title, stop.GPS, stop.PhotoURL, int64(stop.Order), bool(stop.IsDefault))
			if err != nil {
				return fmt.Errorf("upsert stop %d: %w", stop.ID, err)
			}
		}

		// One route per stop: origin city -> this stop. The from-stop is
		// always NULL in this data set; the identity index makes the
		// insert a no-op when the route is already known.
		for j := range city.Stops {
			stop := &city.Stops[j]
			_, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO routes (from_city_id, to_city_id, from_stop_id, to_stop_id)
				VALUES (?, ?, NULL, ?)
			`, fromCityID, int64(city.ID), int64(stop.ID))
			if err != nil {
				return fmt.Errorf("insert route %d->%d/%d: %w", fromCityID, city.ID, stop.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RouteSummary returns all routes joined to their city and stop names.
func (s *SQLiteStore) RouteSummary(ctx context.Context) ([]RouteSummaryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			r.id,
			c1.name AS from_city,
			c2.name AS to_city,
			s1.title AS from_stop,
			s2.title AS to_stop
		FROM routes r
		JOIN cities c1 ON r.from_city_id = c1.id
		JOIN cities c2 ON r.to_city_id = c2.id
		LEFT JOIN stops s1 ON r.from_stop_id = s1.id
		JOIN stops s2 ON r.to_stop_id = s2.id
		ORDER BY c1.name, c2.name, s1.title, s2.title
	`)
	if err != nil {
		return nil, fmt.Errorf("query route summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RouteSummaryRow
	for rows.Next() {
		var r RouteSummaryRow
		var fromStop sql.NullString
		if err := rows.Scan(&r.ID, &r.FromCity, &r.ToCity, &fromStop, &r.ToStop); err != nil {
			return nil, fmt.Errorf("scan route summary: %w", err)
		}
		if fromStop.Valid {
			r.FromStop = fromStop.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Cities returns all stored cities ordered by name.
func (s *SQLiteStore) Cities(ctx context.Context) ([]CityRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, is_waypoint, is_top FROM cities ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query cities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CityRow
	for rows.Next() {
		var c CityRow
		var slug sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &slug, &c.IsWaypoint, &c.IsTop); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		if slug.Valid {
			c.Slug = slug.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CityStops returns the stops of one city in display order.
func (s *SQLiteStore) CityStops(ctx context.Context, cityID int64) ([]StopRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, city_id, title, gps, photo_url, order_num, is_default
		FROM stops WHERE city_id = ? ORDER BY order_num, id
	`, cityID)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StopRow
	for rows.Next() {
		var st StopRow
		var gps, photo sql.NullString
		var orderNum sql.NullInt64
		if err := rows.Scan(&st.ID, &st.CityID, &st.Title, &gps, &photo, &orderNum, &st.IsDefault); err != nil {
			return nil, fmt.Errorf("scan stop: %w", err)
		}
		if gps.Valid {
			st.GPS = gps.String
		}
		if photo.Valid {
			st.PhotoURL = photo.String
		}
		if orderNum.Valid {
			st.OrderNum = orderNum.Int64
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Stats returns aggregate statistics about the stored catalog.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM cities", &stats.Cities},
		{"SELECT COUNT(*) FROM stops", &stats.Stops},
		{"SELECT COUNT(*) FROM routes", &stats.Routes},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, err
		}
	}

	var err error
	stats.TopStopCities, err = s.topCities(ctx, `
		SELECT c.name, COUNT(s.id) AS n
		FROM cities c
		JOIN stops s ON c.id = s.city_id
		GROUP BY c.id
		ORDER BY n DESC
		LIMIT 5
	`)
	if err != nil {
		return nil, err
	}

	stats.TopConnected, err = s.topCities(ctx, `
		SELECT c.name, COUNT(*) AS n
		FROM cities c
		JOIN routes r ON c.id = r.from_city_id
		GROUP BY c.id
		ORDER BY n DESC
		LIMIT 5
	`)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *SQLiteStore) topCities(ctx context.Context, query string) ([]CityCount, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []CityCount
	for rows.Next() {
		var cc CityCount
		if err := rows.Scan(&cc.Name, &cc.Count); err != nil {
			return nil, err
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// Maintain refreshes planner statistics and compacts the database file.
// VACUUM cannot run inside a transaction, so the statements go out one
// at a time.
func (s *SQLiteStore) Maintain(ctx context.Context) error {
	for _, stmt := range []string{"PRAGMA optimize", "ANALYZE", "VACUUM"} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}
