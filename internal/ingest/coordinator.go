// Package ingest drives the concurrent catalog ingestion batch.
package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"smilebus_ingest/internal/fetch"
	"smilebus_ingest/internal/storage"
)

// Fetcher retrieves one city's catalog. Satisfied by *fetch.Client.
type Fetcher interface {
	FetchCity(ctx context.Context, cityID int64) fetch.Outcome
}

// OutcomeSink receives every task outcome as it is consumed. Sinks are
// advisory: a sink failure is logged and never affects the batch.
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, o fetch.Outcome) error
}

// Config holds the batch parameters.
type Config struct {
	FirstCityID int64 // Inclusive lower bound of the id range.
	LastCityID  int64 // Inclusive upper bound.
	Workers     int   // Concurrent fetch limit.
}

// DefaultConfig matches the production catalog sweep.
func DefaultConfig() Config {
	return Config{FirstCityID: 1, LastCityID: 1000, Workers: 10}
}

// Summary reports what happened to every dispatched city.
type Summary struct {
	Dispatched  int
	Written     int // Catalogs persisted.
	EmptySkips  int // Cities with no outbound routes.
	ErrorSkips  int // Transport or shape failures.
	WriteErrors int // Catalogs fetched but not persisted.
	Elapsed     time.Duration
}

// Coordinator dispatches one fetch per city id, bounded by the worker
// limit, and consumes outcomes in completion order. It is the single
// writer: every completed catalog is applied to the store from the
// consuming goroutine, so two outcomes can never interleave in the
// store.
type Coordinator struct {
	fetcher Fetcher
	store   storage.Store
	logger  *log.Logger
	sinks   []OutcomeSink
	cfg     Config
}

// New creates a coordinator. The logger receives one line per skip and
// per write failure; it must not be nil.
func New(fetcher Fetcher, store storage.Store, logger *log.Logger, cfg Config) *Coordinator {
	return &Coordinator{
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		cfg:     cfg,
	}
}

// AddSink registers an outcome sink (fetch log, event publisher).
func (c *Coordinator) AddSink(s OutcomeSink) {
	c.sinks = append(c.sinks, s)
}

// Run executes the batch and blocks until every dispatched city has
// produced exactly one outcome. Per-city failures are absorbed into the
// summary; the returned error is non-nil only when the batch itself is
// cut short by context cancellation.
func (c *Coordinator) Run(ctx context.Context) (*Summary, error) {
	if c.cfg.FirstCityID <= 0 || c.cfg.LastCityID < c.cfg.FirstCityID {
		return nil, fmt.Errorf("invalid city id range [%d, %d]", c.cfg.FirstCityID, c.cfg.LastCityID)
	}
	if c.cfg.Workers <= 0 {
		c.cfg.Workers = 1
	}

	start := time.Now()

	results := make(chan fetch.Outcome, c.cfg.Workers*2)
	sem := make(chan struct{}, c.cfg.Workers)
	dispatched := make(chan int, 1)

	summary := &Summary{}

	// Dispatch runs alongside the consumer so the results buffer never
	// wedges the batch.
	go func() {
		var wg sync.WaitGroup
		n := 0
	dispatch:
		for id := c.cfg.FirstCityID; id <= c.cfg.LastCityID; id++ {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				break dispatch
			}
			n++
			wg.Add(1)
			go func(cityID int64) {
				defer wg.Done()
				defer func() { <-sem }()
				results <- c.fetcher.FetchCity(ctx, cityID)
			}(id)
		}
		wg.Wait()
		close(results)
		dispatched <- n
	}()

	// Single consumer: outcomes arrive in completion order, not
	// dispatch order, and each write runs to completion before the
	// next outcome is touched.
	for o := range results {
		c.record(ctx, o)
		c.consume(ctx, o, summary)
	}

	summary.Dispatched = <-dispatched
	summary.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("batch interrupted: %w", err)
	}
	return summary, nil
}

func (c *Coordinator) consume(ctx context.Context, o fetch.Outcome, summary *Summary) {
	switch o.Status {
	case fetch.StatusData:
		if err := c.store.ApplyCatalog(ctx, o.CityID, o.Cities); err != nil {
			summary.WriteErrors++
			c.logger.Printf("ERROR write city %d: %v", o.CityID, err)
			return
		}
		summary.Written++
		c.logger.Printf("INFO processed city %d: %d destinations in %s", o.CityID, len(o.Cities), o.Elapsed.Round(time.Millisecond))

	case fetch.StatusSkip:
		if o.Err != nil {
			summary.ErrorSkips++
			c.logger.Printf("ERROR skip city %d: %s: %v", o.CityID, o.Reason, o.Err)
		} else {
			summary.EmptySkips++
			c.logger.Printf("INFO skip city %d: %s", o.CityID, o.Reason)
		}
	}
}

func (c *Coordinator) record(ctx context.Context, o fetch.Outcome) {
	for _, s := range c.sinks {
		if err := s.RecordOutcome(ctx, o); err != nil {
			c.logger.Printf("WARN outcome sink: city %d: %v", o.CityID, err)
		}
	}
}
