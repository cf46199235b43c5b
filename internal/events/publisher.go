// Package events publishes ingest outcome events to NATS so other
// systems can watch a catalog sweep as it happens.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"smilebus_ingest/internal/fetch"
)

// DefaultSubject is the subject outcome events are published on.
const DefaultSubject = "smilebus.ingest.outcome"

// OutcomeEvent is the wire format of one published outcome.
type OutcomeEvent struct {
	CityID     int64  `json:"city_id"`
	Status     string `json:"status"` // "data" or "skip".
	Cities     int    `json:"cities,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Timestamp  string `json:"timestamp"`
}

// Publisher publishes outcome events to a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// Connect connects to a NATS server. An empty subject selects
// DefaultSubject.
func Connect(url, subject string) (*Publisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(url,
		nats.Name("smilebus_ingest"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{conn: conn, subject: subject}, nil
}

// Close flushes pending publishes and closes the connection.
func (p *Publisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}

// RecordOutcome publishes one outcome event.
func (p *Publisher) RecordOutcome(_ context.Context, o fetch.Outcome) error {
	ev := OutcomeEvent{
		CityID:     o.CityID,
		Status:     "data",
		Cities:     len(o.Cities),
		Reason:     o.Reason,
		DurationMS: o.Elapsed.Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if o.Status == fetch.StatusSkip {
		ev.Status = "skip"
		ev.Cities = 0
	}
	if o.Err != nil {
		ev.Error = o.Err.Error()
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal outcome event: %w", err)
	}
	if err := p.conn.Publish(p.subject, b); err != nil {
		return fmt.Errorf("publish outcome event: %w", err)
	}
	return nil
}
