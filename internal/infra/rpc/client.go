package rpc

import (
	"context"
)

// Caller is the minimal surface chain adapters depend on.
type Caller interface {
	Call(ctx context.Context, method string, params []any, result any) error
}

// Client is the high-level interface for making RPC calls.
// This is what application layers should use.
type Client struct {
	provider Provider
	retry    RetryConfig
}

// NewClient creates a new RPC client.
func NewClient(p Provider, retry RetryConfig) *Client {
	return &Client{
		provider: p,
		retry:    retry,
	}
}

// Call makes an RPC call, retrying transient failures per the retry config.
func (c *Client) Call(ctx context.Context, method string, params []any, result any) error {
	return CallWithRetry(ctx, c.provider, method, params, result, c.retry)
}

// GetHealth returns the underlying provider's health.
func (c *Client) GetHealth() HealthStatus {
	return c.provider.GetHealth()
}

// Close releases the provider.
func (c *Client) Close() error {
	return c.provider.Close()
}
