package monitor

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// ReadinessCheck is consulted after the startup grace period. A failure is
// only logged; the connection is still registered.
type ReadinessCheck func(ctx context.Context, socketPath string) error

// DockerPing pings the Docker-compatible API served on socketPath.
func DockerPing(ctx context.Context, socketPath string) error {
	cli, err := client.NewClientWithOpts(
		client.WithHost("unix://"+socketPath),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine client for %s: %w", socketPath, err)
	}
	defer func() { _ = cli.Close() }()
	if _, err := cli.Ping(ctx); err != nil {
		return fmt.Errorf("engine ping on %s failed: %w", socketPath, err)
	}
	return nil
}
