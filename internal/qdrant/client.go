package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// DefaultPrefix is prepended to all collection names unless overridden.
	DefaultPrefix = "ag_"

	// DefaultPort is the default Qdrant gRPC port.
	DefaultPort = 6334

	// DefaultTimeout is the default operation timeout.
	DefaultTimeout = 30 * time.Second
)

// ClientConfig holds configuration for the Qdrant client.
type ClientConfig struct {
	// URL is the Qdrant server address, e.g. "localhost:6334" or
	// "https://qdrant.example.com:6334".
	URL string

	// APIKey for authentication (optional).
	APIKey string

	// Prefix is prepended to all collection names.
	Prefix string

	// Timeout for operations.
	Timeout time.Duration
}

// Client wraps the Qdrant Go client with AnswerGrid specific operations.
type Client struct {
	client *qdrant.Client
	config ClientConfig
	mu     sync.RWMutex
	closed bool
}

// NewClient creates a new Qdrant client wrapper.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	host, port, useTLS, err := parseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// parseURL extracts host, port, and TLS mode from an address that may or
// may not carry a scheme.
func parseURL(raw string) (host string, port int, useTLS bool, err error) {
	if raw == "" {
		return "localhost", DefaultPort, false, nil
	}

	if !strings.Contains(raw, "://") {
		raw = "qdrant://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, err
	}

	host = u.Hostname()
	if host == "" {
		return "", 0, false, fmt.Errorf("missing host in %q", raw)
	}

	port = DefaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid port in %q", raw)
		}
	}

	return host, port, u.Scheme == "https", nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	return c.client.Close()
}

// HealthCheck verifies the Qdrant server is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	reply, err := c.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if reply.GetTitle() == "" {
		return fmt.Errorf("unexpected health check response")
	}

	return nil
}

// collectionName returns the full collection name with prefix.
func (c *Client) collectionName(name string) string {
	return c.config.Prefix + name
}

// IsNotFound reports whether the error is a gRPC NotFound, which Qdrant
// returns for missing collections and points.
func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// IsUnavailable reports whether the error indicates the server cannot be
// reached, so callers can distinguish outages from bad requests.
func IsUnavailable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
