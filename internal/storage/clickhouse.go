package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"smilebus_ingest/internal/fetch"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// FetchLog is an append-only ClickHouse sink recording one row per fetch
// outcome. The relational catalog stays in SQLite/Postgres; this table
// exists for after-the-fact analysis of sweep behaviour (skip rates,
// latency per city, runs over time).
type FetchLog struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*FetchLog, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &FetchLog{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (f *FetchLog) Close() error {
	return f.conn.Close()
}

// CreateSchema creates the fetch_log table.
func (f *FetchLog) CreateSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS fetch_log (
		city_id      Int64,
		status       LowCardinality(String),
		reason       String,
		error        String,
		duration_ms  UInt32,
		recorded_at  DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(recorded_at)
	ORDER BY (status, city_id, recorded_at)`

	if err := f.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create fetch_log schema: %w", err)
	}
	return nil
}

// RecordOutcome appends one fetch outcome.
func (f *FetchLog) RecordOutcome(ctx context.Context, o fetch.Outcome) error {
	status := "data"
	if o.Status == fetch.StatusSkip {
		status = "skip"
	}
	errText := ""
	if o.Err != nil {
		errText = o.Err.Error()
	}

	err := f.conn.Exec(ctx, `
		INSERT INTO fetch_log (city_id, status, reason, error, duration_ms)
		VALUES (?, ?, ?, ?, ?)
	`, o.CityID, status, o.Reason, errText, uint32(o.Elapsed.Milliseconds()))
	if err != nil {
		return fmt.Errorf("insert fetch_log: %w", err)
	}
	return nil
}
