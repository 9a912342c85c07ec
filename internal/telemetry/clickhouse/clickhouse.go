package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/socktainerd/internal/telemetry"
)

// DefaultTable is used when the DSN names no table.
const DefaultTable = "usage_events"

// Sink sends usage events to ClickHouse over the native protocol.
type Sink struct {
	conn  driver.Conn
	table string
}

// Options selects the server and target table.
type Options struct {
	Addr     string // host:port of the native interface
	Database string
	Username string
	Password string
	Table    string
}

// New connects, pings and creates the table if missing.
func New(opts Options) (*Sink, error) {
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.Username == "" {
		opts.Username = "default"
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx := context.Background()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: opts.Table}
	if err := s.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create ClickHouse table: %w", err)
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	return s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			occurred_at DateTime64(6),
			name String,
			properties Map(String, String)
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, name)`, s.table))
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e telemetry.Event) error {
	props := e.Properties
	if props == nil {
		props = map[string]string{}
	}
	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, name, properties) VALUES (?, ?, ?)`, s.table)
	if err := s.conn.Exec(ctx, query, e.OccurredAt.UTC(), e.Name, props); err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
