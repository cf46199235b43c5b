// Package smilebus provides types for the SmileBus route catalog API.
package smilebus

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ResultSuccess is the result value the API returns for a populated catalog.
const ResultSuccess = "success"

// FlexInt64 handles JSON fields that can be either string or number.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	// Try as number first
	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexInt64(i)
		return nil
	}

	// Try as string
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*f = 0
			return nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			*f = 0
			return nil // Silently ignore unparseable IDs
		}
		*f = FlexInt64(i)
		return nil
	}

	*f = 0
	return nil
}

// FlexBool handles JSON fields that can be a bool, a 0/1 number, or a string.
// The API is inconsistent about how it encodes its flag fields.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = FlexBool(b)
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = n != 0
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes":
			*f = true
		default:
			*f = false
		}
		return nil
	}

	*f = false
	return nil
}

// Response is the envelope returned by the cities-arrival endpoint.
type Response struct {
	Result string `json:"result"`
	Data   []City `json:"data"`
}

// HasData reports whether the response carries a usable catalog payload.
// A response with result != "success" or an empty data list is not an
// error, just a city with no outbound routes.
func (r *Response) HasData() bool {
	return r.Result == ResultSuccess && len(r.Data) > 0
}

// City is one destination city record with its boarding stops.
type City struct {
	ID         FlexInt64 `json:"id_city"`
	Name       string    `json:"city_name"`
	Slug       *string   `json:"city_slug"`
	IsWaypoint FlexBool  `json:"is_waypoint"`
	IsTop      FlexBool  `json:"is_top"`
	Stops      []Stop    `json:"stops"`
}

// Stop is one boarding/alighting point within a city.
type Stop struct {
	ID        FlexInt64 `json:"id"`
	Title     string    `json:"title"`
	GPS       *string   `json:"gps"`
	PhotoURL  *string   `json:"photo_url"`
	Order     FlexInt64 `json:"order"`
	IsDefault FlexBool  `json:"is_default"`
}

// Validate checks the fields the store depends on. The API is untrusted,
// so anything that would break a foreign key or leave an unusable row is
// rejected before it reaches the writer.
func (c *City) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("city: missing or invalid id_city")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("city %d: missing city_name", c.ID)
	}
	for i := range c.Stops {
		if err := c.Stops[i].Validate(); err != nil {
			return fmt.Errorf("city %d: %w", c.ID, err)
		}
	}
	return nil
}

// Validate checks the fields required for a stop row.
func (s *Stop) Validate() error {
	if s.ID <= 0 {
		return fmt.Errorf("stop: missing or invalid id")
	}
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("stop %d: missing title", s.ID)
	}
	return nil
}
