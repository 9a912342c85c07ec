package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/socktainerd/internal/telemetry"
)

func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	c, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start ClickHouse container: %v", err)
	}

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "9000")
	require.NoError(t, err)
	return c, host + ":" + port.Port()
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	c, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := c.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink, err := New(Options{Addr: addr, Table: "usage_test"})
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	e := telemetry.NewEvent(telemetry.EventRegisteredConnection, map[string]string{"version": "0.6.0"})
	require.NoError(t, sink.Send(ctx, e))
	require.NoError(t, sink.Send(ctx, telemetry.NewEvent("empty", nil)))

	var count uint64
	require.NoError(t, sink.conn.QueryRow(ctx, "SELECT count() FROM usage_test").Scan(&count))
	assert.Equal(t, uint64(2), count)

	var version string
	require.NoError(t, sink.conn.QueryRow(ctx,
		"SELECT properties['version'] FROM usage_test WHERE name = ?", e.Name).Scan(&version))
	assert.Equal(t, "0.6.0", version)
}
