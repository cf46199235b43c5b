// Package main provides a consistency checker for the catalog database.
// It reports row counts, coverage gaps, and records that look wrong
// (unnamed cities, stops without coordinates, duplicate slugs).
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", "smilebus.db", "SQLite database file")
	outputFormat := flag.String("format", "text", "Output format: text, json")
	topN := flag.Int("top", 20, "Show top N items in each category")

	flag.Parse()

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	report := &CheckReport{}

	fmt.Fprintf(os.Stderr, "Checking catalog...\n")

	report.Summary = checkSummary(db)
	fmt.Fprintf(os.Stderr, "  - Summary complete\n")

	report.UnnamedCities = checkUnnamedCities(db, *topN)
	fmt.Fprintf(os.Stderr, "  - Unnamed cities complete\n")

	report.DuplicateSlugs = checkDuplicateSlugs(db)
	fmt.Fprintf(os.Stderr, "  - Duplicate slugs complete\n")

	report.CityCoverage = checkCityCoverage(db, *topN)
	fmt.Fprintf(os.Stderr, "  - City coverage complete\n")

	if *outputFormat == "json" {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		printTextReport(report)
	}
}

// CheckReport contains all check results.
type CheckReport struct {
	Summary        SummaryStats   `json:"summary"`
	UnnamedCities  []CityRef      `json:"unnamed_cities"`
	DuplicateSlugs []SlugGroup    `json:"duplicate_slugs"`
	CityCoverage   []CityCoverage `json:"city_coverage"`
}

type SummaryStats struct {
	Cities          int     `json:"cities"`
	Stops           int     `json:"stops"`
	Routes          int     `json:"routes"`
	CitiesWithStops int     `json:"cities_with_stops"`
	StopsWithGPS    int     `json:"stops_with_gps"`
	GPSCoverage     float64 `json:"gps_coverage"`
	RoutesWithStop  int     `json:"routes_with_to_stop"`
	UnnamedCities   int     `json:"unnamed_cities"`
}

type CityRef struct {
	ID         int64 `json:"id"`
	RoutesFrom int   `json:"routes_from"`
}

type SlugGroup struct {
	Slug  string   `json:"slug"`
	IDs   []int64  `json:"ids"`
	Names []string `json:"names"`
}

type CityCoverage struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Stops    int    `json:"stops"`
	Inbound  int    `json:"inbound_routes"`
	Outbound int    `json:"outbound_routes"`
}

func checkSummary(db *sql.DB) SummaryStats {
	var s SummaryStats

	_ = db.QueryRow("SELECT COUNT(*) FROM cities").Scan(&s.Cities)
	_ = db.QueryRow("SELECT COUNT(*) FROM stops").Scan(&s.Stops)
	_ = db.QueryRow("SELECT COUNT(*) FROM routes").Scan(&s.Routes)
	_ = db.QueryRow("SELECT COUNT(DISTINCT city_id) FROM stops").Scan(&s.CitiesWithStops)
	_ = db.QueryRow("SELECT COUNT(*) FROM stops WHERE gps IS NOT NULL AND gps != ''").Scan(&s.StopsWithGPS)
	_ = db.QueryRow("SELECT COUNT(*) FROM routes WHERE to_stop_id IS NOT NULL").Scan(&s.RoutesWithStop)
	_ = db.QueryRow("SELECT COUNT(*) FROM cities WHERE name = ''").Scan(&s.UnnamedCities)

	if s.Stops > 0 {
		s.GPSCoverage = float64(s.StopsWithGPS) / float64(s.Stops) * 100
	}
	return s
}

// checkUnnamedCities lists origin placeholders that never received a real
// record. They appear when a city is only ever seen as a departure point.
func checkUnnamedCities(db *sql.DB, topN int) []CityRef {
	rows, err := db.Query(`
		SELECT c.id, COUNT(r.id)
		FROM cities c
		LEFT JOIN routes r ON r.from_city_id = c.id
		WHERE c.name = ''
		GROUP BY c.id
		ORDER BY COUNT(r.id) DESC
		LIMIT ?
	`, topN)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []CityRef
	for rows.Next() {
		var ref CityRef
		if err := rows.Scan(&ref.ID, &ref.RoutesFrom); err == nil {
			out = append(out, ref)
		}
	}
	return out
}

func checkDuplicateSlugs(db *sql.DB) []SlugGroup {
	rows, err := db.Query(`
		SELECT slug, GROUP_CONCAT(id), GROUP_CONCAT(name)
		FROM cities
		WHERE slug IS NOT NULL AND slug != ''
		GROUP BY slug
		HAVING COUNT(*) > 1
		ORDER BY slug
	`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []SlugGroup
	for rows.Next() {
		var slug, ids, names string
		if err := rows.Scan(&slug, &ids, &names); err != nil {
			continue
		}
		g := SlugGroup{Slug: slug}
		for _, part := range strings.Split(ids, ",") {
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				continue
			}
			g.IDs = append(g.IDs, id)
		}
		g.Names = strings.Split(names, ",")
		out = append(out, g)
	}
	return out
}

func checkCityCoverage(db *sql.DB, topN int) []CityCoverage {
	rows, err := db.Query(`
		SELECT c.id, c.name,
			(SELECT COUNT(*) FROM stops s WHERE s.city_id = c.id),
			(SELECT COUNT(*) FROM routes r WHERE r.to_city_id = c.id),
			(SELECT COUNT(*) FROM routes r WHERE r.from_city_id = c.id)
		FROM cities c
		WHERE c.name != ''
		ORDER BY (SELECT COUNT(*) FROM routes r WHERE r.to_city_id = c.id) +
			(SELECT COUNT(*) FROM routes r WHERE r.from_city_id = c.id) DESC
		LIMIT ?
	`, topN)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []CityCoverage
	for rows.Next() {
		var cc CityCoverage
		if err := rows.Scan(&cc.ID, &cc.Name, &cc.Stops, &cc.Inbound, &cc.Outbound); err == nil {
			out = append(out, cc)
		}
	}
	return out
}

func printTextReport(report *CheckReport) {
	s := report.Summary

	fmt.Println("Catalog Check")
	fmt.Println("─────────────")
	fmt.Printf("Cities:              %d (%d unnamed)\n", s.Cities, s.UnnamedCities)
	fmt.Printf("Stops:               %d in %d cities\n", s.Stops, s.CitiesWithStops)
	fmt.Printf("Routes:              %d (%d with arrival stop)\n", s.Routes, s.RoutesWithStop)
	fmt.Printf("GPS coverage:        %d/%d stops (%.1f%%)\n", s.StopsWithGPS, s.Stops, s.GPSCoverage)

	if len(report.UnnamedCities) > 0 {
		fmt.Println("\nUnnamed Cities (departure-only placeholders):")
		fmt.Printf("%-10s %10s\n", "ID", "Routes")
		for _, ref := range report.UnnamedCities {
			fmt.Printf("%-10d %10d\n", ref.ID, ref.RoutesFrom)
		}
	}

	if len(report.DuplicateSlugs) > 0 {
		fmt.Println("\nDuplicate Slugs:")
		for _, g := range report.DuplicateSlugs {
			fmt.Printf("  %s: ids=%v names=%v\n", g.Slug, g.IDs, g.Names)
		}
	} else {
		fmt.Println("\nNo duplicate slugs.")
	}

	if len(report.CityCoverage) > 0 {
		fmt.Println("\nMost Connected Cities:")
		fmt.Printf("%-30s %8s %8s %8s\n", "City", "Stops", "In", "Out")
		for _, cc := range report.CityCoverage {
			fmt.Printf("%-30s %8d %8d %8d\n", cc.Name, cc.Stops, cc.Inbound, cc.Outbound)
		}
	}
}
