// Package main provides a tool to export routes from the catalog database
// to CSV format. The output is one row per route:
// from_city,from_stop,to_city,to_stop
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"

	"smilebus_ingest/internal/storage"
)

func main() {
	engine := flag.String("engine", "sqlite", "Storage engine: sqlite, postgres")
	dbPath := flag.String("db", "smilebus.db", "SQLite database file")
	pgHost := flag.String("pg-host", "localhost", "PostgreSQL host")
	pgPort := flag.Int("pg-port", 5432, "PostgreSQL port")
	pgUser := flag.String("pg-user", "smilebus", "PostgreSQL user")
	pgPassword := flag.String("pg-password", "", "PostgreSQL password")
	pgDB := flag.String("pg-db", "smilebus", "PostgreSQL database")

	output := flag.String("output", "", "Output CSV file (default: stdout)")
	header := flag.Bool("header", true, "Write a header row")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	ctx := context.Background()

	st, err := storage.Open(ctx, storage.Config{
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
	defer st.Close()

	routes, err := st.RouteSummary(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying routes: %v\n", err)
		os.Exit(1)
	}

	if len(routes) == 0 {
		fmt.Fprintf(os.Stderr, "No routes found\n")
		os.Exit(0)
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	w := csv.NewWriter(out)
	if *header {
		if err := w.Write([]string{"from_city", "from_stop", "to_city", "to_stop"}); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing CSV: %v\n", err)
			os.Exit(1)
		}
	}
	for _, r := range routes {
		fromStop := r.FromStop
		if fromStop == "" {
			fromStop = "Any"
		}
		if err := w.Write([]string{r.FromCity, fromStop, r.ToCity, r.ToStop}); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing CSV: %v\n", err)
			os.Exit(1)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing CSV: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Exported %d routes\n", len(routes))
	}
}
