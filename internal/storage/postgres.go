package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smilebus_ingest/internal/smilebus"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresStore wraps a PostgreSQL connection pool holding the catalog.
// Same contract as the SQLite engine, for deployments where the catalog
// is shared between machines.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	// Writes are serialized by the coordinator, so a small pool is
	// plenty; the extra conns serve the read-only API.
	poolCfg.MaxConns = 4
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateSchema creates the catalog tables and indexes.
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cities (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT,
		is_waypoint BOOLEAN NOT NULL DEFAULT FALSE,
		is_top BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS stops (
		id BIGINT PRIMARY KEY,
		city_id BIGINT NOT NULL REFERENCES cities(id),
		title TEXT NOT NULL,
		gps TEXT,
		photo_url TEXT,
		order_num BIGINT,
		is_default BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS routes (
		id BIGSERIAL PRIMARY KEY,
		from_city_id BIGINT NOT NULL REFERENCES cities(id),
		to_city_id BIGINT NOT NULL REFERENCES cities(id),
		from_stop_id BIGINT REFERENCES stops(id),
		to_stop_id BIGINT REFERENCES stops(id)
	);

	CREATE INDEX IF NOT EXISTS idx_cities_slug ON cities (slug);
	CREATE INDEX IF NOT EXISTS idx_stops_city_id ON stops (city_id);
	CREATE INDEX IF NOT EXISTS idx_routes_from_to ON routes (from_city_id, to_city_id);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_routes_identity
		ON routes (from_city_id, to_city_id, COALESCE(from_stop_id, -1), COALESCE(to_stop_id, -1));
	`

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ApplyCatalog persists one fetched catalog inside a single transaction.
func (s *PostgresStore) ApplyCatalog(ctx context.Context, fromCityID int64, cities []smilebus.City) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Placeholder origin row, overwritten once the city shows up as a
	// destination in some sweep.
	_, err = tx.Exec(ctx, `
		INSERT INTO cities (id, name) VALUES ($1, '')
		ON CONFLICT (id) DO NOTHING
	`, fromCityID)
	if err != nil {
		return fmt.Errorf("ensure origin city %d: %w", fromCityID, err)
	}

	for i := range cities {
		city := &cities[i]

		_, err := tx.Exec(ctx, `
			INSERT INTO cities (id, name, slug, is_waypoint, is_top)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				slug = EXCLUDED.slug,
				is_waypoint = EXCLUDED.is_waypoint,
				is_top = EXCLUDED.is_top
		`, int64(city.ID), city.Name, city.Slug, bool(city.IsWaypoint), bool(city.IsTop))
		if err != nil {
			return fmt.Errorf("upsert city %d: %w", city.ID, err)
		}

		for j := range city.Stops {
			stop := &city.Stops[j]
			_, err := tx.Exec(ctx, `
				INSERT INTO stops (id, city_id, title, gps, photo_url, order_num, is_default)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (id) DO UPDATE SET
					city_id = EXCLUDED.city_id,
					title = EXCLUDED.title,
					gps = EXCLUDED.gps,
					photo_url = EXCLUDED.photo_url,
					order_num = EXCLUDED.order_num,
					is_default = EXCLUDED.is_default
			`, int64(stop.ID), int64(city.ID), stop.Title, stop.GPS, stop.PhotoURL, int64(stop.Order), bool(stop.IsDefault))
			if err != nil {
				return fmt.Errorf("upsert stop %d: %w", stop.ID, err)
			}
		}

		for j := range city.Stops {
			stop := &city.Stops[j]
			_, err := tx.Exec(ctx, `
				INSERT INTO routes (from_city_id, to_city_id, from_stop_id, to_stop_id)
				VALUES ($1, $2, NULL, $3)
				ON CONFLICT DO NOTHING
			`, fromCityID, int64(city.ID), int64(stop.ID))
			if err != nil {
				return fmt.Errorf("insert route %d->%d/%d: %w", fromCityID, city.ID, stop.ID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RouteSummary returns all routes joined to their city and stop names.
func (s *PostgresStore) RouteSummary(ctx context.Context) ([]RouteSummaryRow, error) {
	rows, err := s.pool.Query(ctx, `
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
		ORDER BY c1.name, c2.name, s1.title NULLS FIRST, s2.title
	`)
	if err != nil {
		return nil, fmt.Errorf("query route summary: %w", err)
	}
	defer rows.Close()

	var out []RouteSummaryRow
	for rows.Next() {
		var r RouteSummaryRow
		var fromStop *string
		if err := rows.Scan(&r.ID, &r.FromCity, &r.ToCity, &fromStop, &r.ToStop); err != nil {
			return nil, fmt.Errorf("scan route summary: %w", err)
		}
		if fromStop != nil {
			r.FromStop = *fromStop
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Cities returns all stored cities ordered by name.
func (s *PostgresStore) Cities(ctx context.Context) ([]CityRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, slug, is_waypoint, is_top FROM cities ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query cities: %w", err)
	}
	defer rows.Close()

	var out []CityRow
	for rows.Next() {
		var c CityRow
		var slug *string
		if err := rows.Scan(&c.ID, &c.Name, &slug, &c.IsWaypoint, &c.IsTop); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		if slug != nil {
			c.Slug = *slug
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CityStops returns the stops of one city in display order.
func (s *PostgresStore) CityStops(ctx context.Context, cityID int64) ([]StopRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, city_id, title, gps, photo_url, order_num, is_default
		FROM stops WHERE city_id = $1 ORDER BY order_num, id
	`, cityID)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()

	var out []StopRow
	for rows.Next() {
		var st StopRow
		var gps, photo *string
		var orderNum *int64
		if err := rows.Scan(&st.ID, &st.CityID, &st.Title, &gps, &photo, &orderNum, &st.IsDefault); err != nil {
			return nil, fmt.Errorf("scan stop: %w", err)
		}
		if gps != nil {
			st.GPS = *gps
		}
		if photo != nil {
			st.PhotoURL = *photo
		}
		if orderNum != nil {
			st.OrderNum = *orderNum
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Stats returns aggregate statistics about the stored catalog.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
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
		if err := s.pool.QueryRow(ctx, c.query).Scan(c.dst); err != nil {
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

func (s *PostgresStore) topCities(ctx context.Context, query string) ([]CityCount, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

// Maintain refreshes planner statistics and reclaims dead rows.
func (s *PostgresStore) Maintain(ctx context.Context) error {
	for _, stmt := range []string{"VACUUM ANALYZE cities", "VACUUM ANALYZE stops", "VACUUM ANALYZE routes"} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}
