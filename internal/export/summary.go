// Package export writes the flattened route summary artifact.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"smilebus_ingest/internal/storage"
)

// AnyStop is rendered when a route has no specific origin stop.
const AnyStop = "Any"

// Route is one exported route description.
type Route struct {
	ID       int64  `json:"id"`
	FromCity string `json:"from_city"`
	ToCity   string `json:"to_city"`
	FromStop string `json:"from_stop"`
	ToStop   string `json:"to_stop"`
}

// Summary builds the flattened, ordered route list from the store.
// Routes with no origin stop render as departing from "Any".
func Summary(ctx context.Context, st storage.Store) ([]Route, error) {
	rows, err := st.RouteSummary(ctx)
	if err != nil {
		return nil, err
	}

	routes := make([]Route, 0, len(rows))
	for _, r := range rows {
		fromStop := r.FromStop
		if fromStop == "" {
			fromStop = AnyStop
		}
		routes = append(routes, Route{
			ID:       r.ID,
			FromCity: r.FromCity,
			ToCity:   r.ToCity,
			FromStop: fromStop,
			ToStop:   r.ToStop,
		})
	}
	return routes, nil
}

// WriteSummary writes the route summary to path as indented JSON,
// replacing any previous artifact. Returns the number of routes written.
func WriteSummary(ctx context.Context, st storage.Store, path string) (int, error) {
	routes, err := Summary(ctx, st)
	if err != nil {
		return 0, err
	}

	b, err := json.MarshalIndent(routes, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal summary: %w", err)
	}
	b = append(b, '\n')

	if err := os.WriteFile(path, b, 0o644); err != nil {
		return 0, fmt.Errorf("write summary: %w", err)
	}
	return len(routes), nil
}
