// Package main provides the catalog-api server for the populated
// SmileBus route catalog.
//
// This is a standalone read-only REST API over a store populated by the
// smilebus_ingest command. Run it after ingestion completes; it never
// writes.
//
// Usage:
//
//	catalog-api [options]
//
// Options:
//
//	-engine ENGINE      Storage engine: sqlite or postgres (default: sqlite)
//	-db PATH            SQLite database path (default: smilebus.db, env: SMILEBUS_DB)
//	-pg-host HOST       PostgreSQL host (default: localhost, env: POSTGRES_HOST)
//	-pg-port PORT       PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB     PostgreSQL database (default: smilebus, env: POSTGRES_DATABASE)
//	-pg-user USER       PostgreSQL user (default: smilebus, env: POSTGRES_USER)
//	-pg-password PASS   PostgreSQL password (default: smilebus, env: POSTGRES_PASSWORD)
//	-port N             HTTP port (default: 8082)
//
// API Endpoints:
//
//	GET /api/v1/health
//	    Health check endpoint.
//
//	GET /api/v1/routes?limit=N&offset=M
//	    Flattened route summary, ordered by city and stop names.
//
//	GET /api/v1/cities
//	    All cities ordered by name.
//
//	GET /api/v1/cities/{city_id}/stops
//	    Stops of one city in display order.
//
//	GET /api/v1/stats
//	    Aggregate catalog statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"smilebus_ingest/internal/api"
	"smilebus_ingest/internal/storage"
)

func main() {
	def := storage.DefaultConfig()
	engine := flag.String("engine", envOrDefault("SMILEBUS_ENGINE", string(def.Engine)), "Storage engine: sqlite or postgres")
	dbPath := flag.String("db", envOrDefault("SMILEBUS_DB", def.Path), "SQLite database path")
	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", def.Postgres.Host), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", def.Postgres.Port), "PostgreSQL port")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", def.Postgres.Database), "PostgreSQL database")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", def.Postgres.User), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", def.Postgres.Password), "PostgreSQL password")

	port := flag.Int("port", 8082, "HTTP port for API server")

	flag.Parse()

	ctx := context.Background()

	store, err := storage.Open(ctx, storage.Config{
		Engine: storage.Engine(*engine),
		Path:   *dbPath,
		Postgres: storage.PostgresConfig{
			Host:     *pgHost,
			Port:     *pgPort,
			Database: *pgDB,
			User:     *pgUser,
			Password: *pgPassword,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	server := api.NewCatalogServer(store, api.Config{Port: *port})
	if err := server.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
