// Package fetch retrieves per-city route catalogs from the SmileBus API.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"smilebus_ingest/internal/smilebus"
)

// DefaultBaseURL is the production cities-arrival endpoint.
const DefaultBaseURL = "https://smilebus.by/api/v2/route/cities-arrival"

// Status tags a fetch outcome.
type Status int

const (
	// StatusData means the fetch produced a decoded catalog payload.
	StatusData Status = iota
	// StatusSkip means the city produced nothing to write. Err is set
	// for transport and shape failures and nil for an empty catalog.
	StatusSkip
)

// Outcome is the result of one city fetch. Every dispatched city yields
// exactly one Outcome so that skips stay attributable.
type Outcome struct {
	CityID  int64
	Status  Status
	Cities  []smilebus.City // Decoded payload, set for StatusData.
	Reason  string          // Short skip reason for the log.
	Err     error           // Underlying error, nil for informational skips.
	Elapsed time.Duration
}

// Client fetches city catalogs with a fixed per-request timeout.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// NewClient creates a fetch client. An empty baseURL selects the
// production endpoint.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// FetchCity requests the outbound catalog for one origin city. It never
// returns an error: transport and shape failures become skip outcomes so
// one bad city cannot take down the batch.
func (c *Client) FetchCity(ctx context.Context, cityID int64) Outcome {
	start := time.Now()
	skip := func(reason string, err error) Outcome {
		return Outcome{CityID: cityID, Status: StatusSkip, Reason: reason, Err: err, Elapsed: time.Since(start)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s?city_from_id=%d", c.baseURL, cityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return skip("build request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return skip("request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return skip(fmt.Sprintf("unexpected status %d", resp.StatusCode),
			fmt.Errorf("status %s", resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return skip("read body", err)
	}

	var decoded smilebus.Response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return skip("decode response", err)
	}

	if !decoded.HasData() {
		// Not an error: the city simply has no outbound routes.
		return skip("empty result", nil)
	}

	for i := range decoded.Data {
		if err := decoded.Data[i].Validate(); err != nil {
			return skip("invalid record", err)
		}
	}

	return Outcome{
		CityID:  cityID,
		Status:  StatusData,
		Cities:  decoded.Data,
		Elapsed: time.Since(start),
	}
}
