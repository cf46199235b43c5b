package storage

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"smilebus_ingest/internal/smilebus"
)

// setupTestStore creates a fresh SQLite store in a temp directory.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.CreateSchema(context.Background()); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	return store
}

func strPtr(s string) *string { return &s }

// rigaCatalog is the single-destination payload from the city 5 sweep.
func rigaCatalog() []smilebus.City {
	return []smilebus.City{{
		ID:         9,
		Name:       "Riga",
		Slug:       strPtr("riga"),
		IsWaypoint: false,
		IsTop:      true,
		Stops: []smilebus.Stop{{
			ID:        100,
			Title:     "Central",
			GPS:       strPtr("56.9,24.1"),
			PhotoURL:  nil,
			Order:     1,
			IsDefault: true,
		}},
	}}
}

func (s *SQLiteStore) countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestCreateSchema_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// A second run against the initialized store must be a no-op.
	if err := store.CreateSchema(ctx); err != nil {
		t.Fatalf("second CreateSchema: %v", err)
	}

	if err := store.ApplyCatalog(ctx, 5, rigaCatalog()); err != nil {
		t.Fatalf("ApplyCatalog: %v", err)
	}
	if err := store.CreateSchema(ctx); err != nil {
		t.Fatalf("CreateSchema after data: %v", err)
	}
	if got := store.countRows(t, "routes"); got != 1 {
		t.Errorf("routes = %d after re-init, want 1", got)
	}
}

func TestApplyCatalog_RigaScenario(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.ApplyCatalog(ctx, 5, rigaCatalog()); err != nil {
		t.Fatalf("ApplyCatalog: %v", err)
	}

	var name, slug string
	var isTop bool
	err := store.db.QueryRow("SELECT name, slug, is_top FROM cities WHERE id = 9").Scan(&name, &slug, &isTop)
	if err != nil {
		t.Fatalf("query city: %v", err)
	}
	if name != "Riga" || slug != "riga" || !isTop {
		t.Errorf("city = %q/%q/top=%v, want Riga/riga/top=true", name, slug, isTop)
	}

	var cityID int64
	var title string
	err = store.db.QueryRow("SELECT city_id, title FROM stops WHERE id = 100").Scan(&cityID, &title)
	if err != nil {
		t.Fatalf("query stop: %v", err)
	}
	if cityID != 9 || title != "Central" {
		t.Errorf("stop = city %d/%q, want 9/Central", cityID, title)
	}

	var from, to, toStop int64
	var fromStop *int64
	err = store.db.QueryRow("SELECT from_city_id, to_city_id, from_stop_id, to_stop_id FROM routes").
		Scan(&from, &to, &fromStop, &toStop)
	if err != nil {
		t.Fatalf("query route: %v", err)
	}
	if from != 5 || to != 9 || fromStop != nil || toStop != 100 {
		t.Errorf("route = %d->%d stop %v->%d, want 5->9 stop <nil>->100", from, to, fromStop, toStop)
	}
}

func TestApplyCatalog_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.ApplyCatalog(ctx, 5, rigaCatalog()); err != nil {
		t.Fatalf("first ApplyCatalog: %v", err)
	}
	if err := store.ApplyCatalog(ctx, 5, rigaCatalog()); err != nil {
		t.Fatalf("second ApplyCatalog: %v", err)
	}

	// Two cities: the Riga row plus the placeholder for origin 5.
	for table, want := range map[string]int{"cities": 2, "stops": 1, "routes": 1} {
		if got := store.countRows(t, table); got != want {
			t.Errorf("%s = %d after re-ingest, want %d", table, got, want)
		}
	}
}

func TestApplyCatalog_OriginPlaceholder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.ApplyCatalog(ctx, 5, rigaCatalog()); err != nil {
		t.Fatalf("ApplyCatalog: %v", err)
	}

	// The unseen origin gets a placeholder row so the route foreign key
	// holds.
	var name string
	if err := store.db.QueryRow("SELECT name FROM cities WHERE id = 5").Scan(&name); err != nil {
		t.Fatalf("query origin city: %v", err)
	}
	if name != "" {
		t.Errorf("placeholder name = %q, want empty", name)
	}

	// Once a sweep returns the origin as a destination, the real record
	// replaces the placeholder.
	if err := store.ApplyCatalog(ctx, 9, []smilebus.City{
		{ID: 5, Name: "Minsk", Stops: []smilebus.Stop{{ID: 300, Title: "East", Order: 1}}},
	}); err != nil {
		t.Fatalf("ApplyCatalog naming origin: %v", err)
	}
	if err := store.db.QueryRow("SELECT name FROM cities WHERE id = 5").Scan(&name); err != nil {
		t.Fatalf("query origin city: %v", err)
	}
	if name != "Minsk" {
		t.Errorf("origin name = %q after real record, want Minsk", name)
	}
}

func TestApplyCatalog_RouteDedup(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Same destination from two different origins: two distinct routes.
	if err := store.ApplyCatalog(ctx, 5, rigaCatalog()); err != nil {
		t.Fatalf("ApplyCatalog origin 5: %v", err)
	}
	if err := store.ApplyCatalog(ctx, 6, rigaCatalog()); err != nil {
		t.Fatalf("ApplyCatalog origin 6: %v", err)
	}
	if got := store.countRows(t, "routes"); got != 2 {
		t.Fatalf("routes = %d, want 2", got)
	}

	// Re-seeing a known tuple leaves the row set unchanged.
	if err := store.ApplyCatalog(ctx, 5, rigaCatalog()); err != nil {
		t.Fatalf("ApplyCatalog repeat: %v", err)
	}
	if got := store.countRows(t, "routes"); got != 2 {
		t.Errorf("routes = %d after repeat, want 2", got)
	}
}

func TestApplyCatalog_LastWriteWins(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.ApplyCatalog(ctx, 5, rigaCatalog()); err != nil {
		t.Fatalf("ApplyCatalog: %v", err)
	}

	updated := rigaCatalog()
	updated[0].Name = "Riga Central"
	updated[0].Stops[0].Title = "New Central"
	if err := store.ApplyCatalog(ctx, 6, updated); err != nil {
		t.Fatalf("ApplyCatalog update: %v", err)
	}

	var cityRows int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM cities WHERE id = 9").Scan(&cityRows); err != nil {
		t.Fatalf("count city 9: %v", err)
	}
	if cityRows != 1 {
		t.Fatalf("city 9 rows = %d, want 1", cityRows)
	}

	var name, title string
	if err := store.db.QueryRow("SELECT name FROM cities WHERE id = 9").Scan(&name); err != nil {
		t.Fatalf("query city: %v", err)
	}
	if err := store.db.QueryRow("SELECT title FROM stops WHERE id = 100").Scan(&title); err != nil {
		t.Fatalf("query stop: %v", err)
	}
	if name != "Riga Central" || title != "New Central" {
		t.Errorf("after overwrite: city=%q stop=%q, want Riga Central/New Central", name, title)
	}
}

func TestApplyCatalog_ReferentialIntegrity(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	catalogs := map[int64][]smilebus.City{
		5: rigaCatalog(),
		6: {{
			ID:   11,
			Name: "Vilnius",
			Stops: []smilebus.Stop{
				{ID: 200, Title: "Station", Order: 1},
				{ID: 201, Title: "Airport", Order: 2},
			},
		}},
	}
	for from, cities := range catalogs {
		if err := store.ApplyCatalog(ctx, from, cities); err != nil {
			t.Fatalf("ApplyCatalog %d: %v", from, err)
		}
	}

	rows, err := store.db.Query("PRAGMA foreign_key_check")
	if err != nil {
		t.Fatalf("foreign_key_check: %v", err)
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		t.Error("foreign_key_check reported violations")
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("foreign_key_check rows: %v", err)
	}

	// Every route's to_stop must belong to its to_city.
	var mismatched int
	err = store.db.QueryRow(`
		SELECT COUNT(*) FROM routes r
		JOIN stops s ON r.to_stop_id = s.id
		WHERE s.city_id != r.to_city_id
	`).Scan(&mismatched)
	if err != nil {
		t.Fatalf("mismatch query: %v", err)
	}
	if mismatched != 0 {
		t.Errorf("routes with to_stop outside to_city = %d, want 0", mismatched)
	}
}

func TestRouteSummary_Ordering(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	catalog := []smilebus.City{
		{ID: 11, Name: "Vilnius", Stops: []smilebus.Stop{
			{ID: 200, Title: "Station", Order: 1},
			{ID: 201, Title: "Airport", Order: 2},
		}},
		{ID: 9, Name: "Riga", Stops: []smilebus.Stop{
			{ID: 100, Title: "Central", Order: 1},
		}},
	}
	if err := store.ApplyCatalog(ctx, 5, catalog); err != nil {
		t.Fatalf("ApplyCatalog: %v", err)
	}

	// Name the origin city so the summary sorts by real city names.
	if err := store.ApplyCatalog(ctx, 9, []smilebus.City{
		{ID: 5, Name: "Minsk", Stops: []smilebus.Stop{{ID: 300, Title: "East", Order: 1}}},
	}); err != nil {
		t.Fatalf("ApplyCatalog origin names: %v", err)
	}

	got, err := store.RouteSummary(ctx)
	if err != nil {
		t.Fatalf("RouteSummary: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}

	sorted := sort.SliceIsSorted(got, func(i, j int) bool {
		a, b := got[i], got[j]
		if a.FromCity != b.FromCity {
			return a.FromCity < b.FromCity
		}
		if a.ToCity != b.ToCity {
			return a.ToCity < b.ToCity
		}
		if a.FromStop != b.FromStop {
			return a.FromStop < b.FromStop
		}
		return a.ToStop < b.ToStop
	})
	if !sorted {
		t.Errorf("summary not ordered: %+v", got)
	}

	for _, r := range got {
		if r.FromStop != "" {
			t.Errorf("route %d: from_stop = %q, want empty (no origin stops in data)", r.ID, r.FromStop)
		}
	}

	// Vilnius destinations must order Airport before Station.
	var vilnius []string
	for _, r := range got {
		if r.ToCity == "Vilnius" {
			vilnius = append(vilnius, r.ToStop)
		}
	}
	if len(vilnius) != 2 || vilnius[0] != "Airport" || vilnius[1] != "Station" {
		t.Errorf("vilnius stops = %v, want [Airport Station]", vilnius)
	}
}

func TestCityStops_DisplayOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	catalog := []smilebus.City{{
		ID:   11,
		Name: "Vilnius",
		Stops: []smilebus.Stop{
			{ID: 201, Title: "Airport", Order: 2},
			{ID: 200, Title: "Station", Order: 1},
		},
	}}
	if err := store.ApplyCatalog(ctx, 5, catalog); err != nil {
		t.Fatalf("ApplyCatalog: %v", err)
	}

	stops, err := store.CityStops(ctx, 11)
	if err != nil {
		t.Fatalf("CityStops: %v", err)
	}
	if len(stops) != 2 {
		t.Fatalf("len = %d, want 2", len(stops))
	}
	if stops[0].Title != "Station" || stops[1].Title != "Airport" {
		t.Errorf("order = [%s %s], want [Station Airport]", stops[0].Title, stops[1].Title)
	}
}

func TestStats(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	catalog := []smilebus.City{
		{ID: 9, Name: "Riga", Stops: []smilebus.Stop{{ID: 100, Title: "Central", Order: 1}}},
		{ID: 11, Name: "Vilnius", Stops: []smilebus.Stop{
			{ID: 200, Title: "Station", Order: 1},
			{ID: 201, Title: "Airport", Order: 2},
		}},
	}
	if err := store.ApplyCatalog(ctx, 9, catalog[1:]); err != nil {
		t.Fatalf("ApplyCatalog: %v", err)
	}
	if err := store.ApplyCatalog(ctx, 11, catalog[:1]); err != nil {
		t.Fatalf("ApplyCatalog: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Cities != 2 || stats.Stops != 3 || stats.Routes != 3 {
		t.Errorf("counts = %d/%d/%d, want 2/3/3", stats.Cities, stats.Stops, stats.Routes)
	}
	if len(stats.TopStopCities) == 0 || stats.TopStopCities[0].Name != "Vilnius" {
		t.Errorf("top stop cities = %+v, want Vilnius first", stats.TopStopCities)
	}
	if len(stats.TopConnected) == 0 || stats.TopConnected[0].Name != "Riga" {
		t.Errorf("top connected = %+v, want Riga first", stats.TopConnected)
	}
}

func TestMaintain(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.ApplyCatalog(ctx, 5, rigaCatalog()); err != nil {
		t.Fatalf("ApplyCatalog: %v", err)
	}
	if err := store.Maintain(ctx); err != nil {
		t.Fatalf("Maintain: %v", err)
	}

	// Committed rows survive maintenance.
	if got := store.countRows(t, "routes"); got != 1 {
		t.Errorf("routes = %d after maintain, want 1", got)
	}
}
