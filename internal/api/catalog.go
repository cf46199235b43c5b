// Package api provides a read-only REST API over the populated catalog.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"smilebus_ingest/internal/export"
	"smilebus_ingest/internal/storage"
)

// CatalogServer serves catalog queries. It only reads, so it can share
// the store handle with nothing else running.
type CatalogServer struct {
	store storage.Store
	port  int
}

// Config holds configuration for the catalog API server.
type Config struct {
	Port int
}

// NewCatalogServer creates a catalog API server.
func NewCatalogServer(store storage.Store, cfg Config) *CatalogServer {
	return &CatalogServer{store: store, port: cfg.Port}
}

// Run starts the HTTP server.
func (s *CatalogServer) Run() error {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/routes", s.handleRoutes)
		r.Get("/cities", s.handleCities)
		r.Get("/cities/{city_id}/stops", s.handleCityStops)
		r.Get("/stats", s.handleStats)
	})

	addr := ":" + strconv.Itoa(s.port)
	log.Printf("Catalog API starting at http://localhost%s", addr)
	return http.ListenAndServe(addr, r)
}

// Router returns the configured chi router for embedding or testing.
func (s *CatalogServer) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/routes", s.handleRoutes)
	r.Get("/cities", s.handleCities)
	r.Get("/cities/{city_id}/stops", s.handleCityStops)
	r.Get("/stats", s.handleStats)
	return r
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *CatalogServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleRoutes returns the flattened route summary with paging.
func (s *CatalogServer) handleRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := export.Summary(r.Context(), s.store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	if offset > len(routes) {
		offset = len(routes)
	}
	end := len(routes)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":  len(routes),
		"routes": routes[offset:end],
	})
}

// CityResponse is the JSON shape of one city.
type CityResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug,omitempty"`
	IsWaypoint bool   `json:"is_waypoint"`
	IsTop      bool   `json:"is_top"`
}

func (s *CatalogServer) handleCities(w http.ResponseWriter, r *http.Request) {
	cities, err := s.store.Cities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]CityResponse, 0, len(cities))
	for _, c := range cities {
		out = append(out, CityResponse{
			ID:         c.ID,
			Name:       c.Name,
			Slug:       c.Slug,
			IsWaypoint: c.IsWaypoint,
			IsTop:      c.IsTop,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// StopResponse is the JSON shape of one stop.
type StopResponse struct {
	ID        int64  `json:"id"`
	CityID    int64  `json:"city_id"`
	Title     string `json:"title"`
	GPS       string `json:"gps,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	OrderNum  int64  `json:"order_num"`
	IsDefault bool   `json:"is_default"`
}

func (s *CatalogServer) handleCityStops(w http.ResponseWriter, r *http.Request) {
	cityID, err := strconv.ParseInt(chi.URLParam(r, "city_id"), 10, 64)
	if err != nil || cityID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid city_id")
		return
	}

	stops, err := s.store.CityStops(r.Context(), cityID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]StopResponse, 0, len(stops))
	for _, st := range stops {
		out = append(out, StopResponse{
			ID:        st.ID,
			CityID:    st.CityID,
			Title:     st.Title,
			GPS:       st.GPS,
			PhotoURL:  st.PhotoURL,
			OrderNum:  st.OrderNum,
			IsDefault: st.IsDefault,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *CatalogServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Helper functions.

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
