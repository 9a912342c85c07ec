package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client reads the socktainerd daemon API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8721/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new API client.
func New(config Config) *Client {
	d := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = d.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = d.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	ok := resp.StatusCode == http.StatusOK
	c.logger.Debug("Daemon reachability check", "reachable", ok, "status", resp.StatusCode)
	return ok
}

// Status returns the runtime status and the bridge snapshot.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.getJSON(ctx, "/status", &st)
	return st, err
}

// Connections returns the connections registered with the host.
func (c *Client) Connections(ctx context.Context) ([]Connection, error) {
	var out []Connection
	err := c.getJSON(ctx, "/connections", &out)
	return out, err
}

// Providers returns the providers known to the host.
func (c *Client) Providers(ctx context.Context) ([]Provider, error) {
	var out []Provider
	err := c.getJSON(ctx, "/providers", &out)
	return out, err
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	c.logger.Error("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return fmt.Errorf("API error: %s", errorResp.Error)
}
