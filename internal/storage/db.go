// Package storage persists the normalized route catalog. Two engines
// share one contract: an embedded SQLite file for the common single-box
// run, and PostgreSQL for deployments where the catalog is shared.
package storage

import (
	"context"
	"fmt"

	"smilebus_ingest/internal/smilebus"
)

// Engine selects the backing database.
type Engine string

const (
	EngineSQLite   Engine = "sqlite"
	EnginePostgres Engine = "postgres"
)

// Config holds store selection and connection settings.
type Config struct {
	Engine   Engine
	Path     string // SQLite database file.
	Postgres PostgresConfig
}

// DefaultConfig returns a configuration with default local settings.
func DefaultConfig() Config {
	return Config{
		Engine: EngineSQLite,
		Path:   "smilebus.db",
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "smilebus",
			User:     "smilebus",
			Password: "",
		},
	}
}

// CityRow is one stored city.
type CityRow struct {
	ID         int64
	Name       string
	Slug       string
	IsWaypoint bool
	IsTop      bool
}

// StopRow is one stored boarding stop.
type StopRow struct {
	ID        int64
	CityID    int64
	Title     string
	GPS       string
	PhotoURL  string
	OrderNum  int64
	IsDefault bool
}

// RouteSummaryRow is one route flattened to names. FromStop is empty
// when the route has no specific origin stop.
type RouteSummaryRow struct {
	ID       int64
	FromCity string
	ToCity   string
	FromStop string
	ToStop   string
}

// CityCount pairs a city name with a count, for top-N statistics.
type CityCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats summarizes the stored catalog.
type Stats struct {
	Cities        int         `json:"cities"`
	Stops         int         `json:"stops"`
	Routes        int         `json:"routes"`
	TopStopCities []CityCount `json:"top_stop_cities"`
	TopConnected  []CityCount `json:"top_connected"`
}

// Store is the catalog persistence contract shared by both engines.
type Store interface {
	// CreateSchema creates the catalog tables and indexes. Safe to call
	// on an already initialized database.
	CreateSchema(ctx context.Context) error

	// ApplyCatalog persists one fetched catalog for the given origin
	// city, atomically.
	ApplyCatalog(ctx context.Context, fromCityID int64, cities []smilebus.City) error

	// RouteSummary returns all routes joined to their city and stop
	// names, ordered for export.
	RouteSummary(ctx context.Context) ([]RouteSummaryRow, error)

	// Cities returns all stored cities ordered by name.
	Cities(ctx context.Context) ([]CityRow, error)

	// CityStops returns the stops of one city in display order.
	CityStops(ctx context.Context, cityID int64) ([]StopRow, error)

	// Stats returns aggregate statistics about the stored catalog.
	Stats(ctx context.Context) (*Stats, error)

	// Maintain refreshes planner statistics and reclaims space.
	Maintain(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}

// Open opens the store selected by cfg.Engine.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Engine {
	case EngineSQLite, "":
		return OpenSQLite(cfg.Path)
	case EnginePostgres:
		return OpenPostgres(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Engine)
	}
}
