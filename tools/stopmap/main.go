// Package main provides a tool to export boarding stops from the catalog
// database to KML format. KML (Keyhole Markup Language) files can be viewed
// in Google Earth, Google Maps, and other mapping applications.
package main

import (
	"database/sql"
	"encoding/xml"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// KML structures for XML marshalling.
// These follow the KML 2.2 specification: https://developers.google.com/kml/documentation/kmlreference

// KML is the root element of a KML document.
type KML struct {
	XMLName   xml.Name `xml:"kml"`
	Namespace string   `xml:"xmlns,attr"`
	Document  Document `xml:"Document"`
}

// Document contains the document metadata and features.
type Document struct {
	Name        string      `xml:"name"`
	Description string      `xml:"description,omitempty"`
	Styles      []Style     `xml:"Style,omitempty"`
	Placemarks  []Placemark `xml:"Placemark"`
}

// Style defines the visual appearance of features.
type Style struct {
	ID        string    `xml:"id,attr"`
	IconStyle IconStyle `xml:"IconStyle"`
}

// IconStyle defines how icons are displayed.
type IconStyle struct {
	Scale float64 `xml:"scale,omitempty"`
	Icon  Icon    `xml:"Icon"`
}

// Icon specifies the icon image.
type Icon struct {
	Href string `xml:"href"`
}

// Placemark represents a geographic feature with geometry and metadata.
type Placemark struct {
	Name         string        `xml:"name"`
	Description  string        `xml:"description,omitempty"`
	StyleURL     string        `xml:"styleUrl,omitempty"`
	Point        Point         `xml:"Point"`
	ExtendedData *ExtendedData `xml:"ExtendedData,omitempty"`
}

// Point represents a geographic location.
type Point struct {
	Coordinates string `xml:"coordinates"` // Format: lon,lat,altitude
}

// ExtendedData holds custom data associated with a placemark.
type ExtendedData struct {
	Data []Data `xml:"Data"`
}

// Data represents a single piece of extended data.
type Data struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// stopRecord is one stop with a usable coordinate pair.
type stopRecord struct {
	ID        int64
	CityName  string
	Title     string
	Lat       float64
	Lon       float64
	IsDefault bool
}

func main() {
	dbPath := flag.String("db", "smilebus.db", "SQLite database file")
	output := flag.String("output", "", "Output KML file (default: stdout)")
	city := flag.String("city", "", "Export stops for one city name only")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	stops, skipped, err := queryStops(db, *city)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying stops: %v\n", err)
		os.Exit(1)
	}

	if len(stops) == 0 {
		fmt.Fprintf(os.Stderr, "No stops with coordinates found\n")
		os.Exit(0)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Exporting %d stops to KML (%d skipped, bad or missing coordinates)\n", len(stops), skipped)
	}

	kml := generateKML(stops)

	xmlData, err := xml.MarshalIndent(kml, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating KML: %v\n", err)
		os.Exit(1)
	}

	xmlOutput := xml.Header + string(xmlData)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(xmlOutput), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", *output)
		}
	} else {
		fmt.Println(xmlOutput)
	}
}

// queryStops reads stops with a parseable gps column. The catalog stores
// coordinates as a "lat,lon" text pair; rows that do not parse are counted
// and skipped rather than aborting the export.
func queryStops(db *sql.DB, city string) ([]stopRecord, int, error) {
	query := `
		SELECT s.id, c.name, s.title, s.gps, s.is_default
		FROM stops s
		JOIN cities c ON c.id = s.city_id
		WHERE s.gps IS NOT NULL AND s.gps != ''
	`
	args := []interface{}{}
	if city != "" {
		query += " AND c.name = ?"
		args = append(args, city)
	}
	query += " ORDER BY c.name, s.order_num, s.id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []stopRecord
	skipped := 0
	for rows.Next() {
		var rec stopRecord
		var gps string
		if err := rows.Scan(&rec.ID, &rec.CityName, &rec.Title, &gps, &rec.IsDefault); err != nil {
			return nil, 0, err
		}
		lat, lon, ok := parseGPS(gps)
		if !ok {
			skipped++
			continue
		}
		rec.Lat, rec.Lon = lat, lon
		out = append(out, rec)
	}
	return out, skipped, rows.Err()
}

// parseGPS splits a "lat,lon" pair. Whitespace around either part is
// tolerated since the upstream data is not consistent about it.
func parseGPS(gps string) (lat, lon float64, ok bool) {
	parts := strings.SplitN(gps, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// generateKML creates a KML document from the stops.
func generateKML(stops []stopRecord) KML {
	placemarks := make([]Placemark, len(stops))
	for i, st := range stops {
		// KML coordinates are in the format: longitude,latitude,altitude
		coords := fmt.Sprintf("%.6f,%.6f,0", st.Lon, st.Lat)

		style := "#stopStyle"
		if st.IsDefault {
			style = "#defaultStopStyle"
		}

		placemarks[i] = Placemark{
			Name:        st.Title,
			Description: fmt.Sprintf("City: %s", st.CityName),
			StyleURL:    style,
			Point: Point{
				Coordinates: coords,
			},
			ExtendedData: &ExtendedData{
				Data: []Data{
					{Name: "stop_id", Value: fmt.Sprintf("%d", st.ID)},
					{Name: "city", Value: st.CityName},
					{Name: "is_default", Value: fmt.Sprintf("%t", st.IsDefault)},
				},
			},
		}
	}

	return KML{
		Namespace: "http://www.opengis.net/kml/2.2",
		Document: Document{
			Name:        "SmileBus Stops",
			Description: fmt.Sprintf("Boarding stops from the route catalog. Generated %s.", time.Now().Format("2006-01-02 15:04:05")),
			Styles: []Style{
				{
					ID: "stopStyle",
					IconStyle: IconStyle{
						Scale: 0.8,
						Icon: Icon{
							Href: "http://maps.google.com/mapfiles/kml/shapes/bus.png",
						},
					},
				},
				{
					ID: "defaultStopStyle",
					IconStyle: IconStyle{
						Scale: 1.0,
						Icon: Icon{
							Href: "http://maps.google.com/mapfiles/kml/shapes/target.png",
						},
					},
				},
			},
			Placemarks: placemarks,
		},
	}
}
