// Package rpc provides the JSON-RPC client used to talk to the ledger node.
//
// # Quick Start
//
//	import "github.com/vietddude/reconciler/internal/infra/rpc"
//
//	p := rpc.NewHTTPProvider("node", rpcURL, 30*time.Second)
//	client := rpc.NewClient(p, rpc.DefaultRetryConfig)
//
//	var head string
//	err := client.Call(ctx, "eth_blockNumber", nil, &head)
//
// # Package Structure
//
//   - provider/ - HTTPProvider, health tracking, RPCError
//   - routing/  - error classification and retry
//
// Most types are re-exported at the root level for convenience.
package rpc

import (
	"time"

	"github.com/vietddude/reconciler/internal/infra/rpc/provider"
	"github.com/vietddude/reconciler/internal/infra/rpc/routing"
)

// =============================================================================
// Re-exported types from provider package
// =============================================================================

// Provider is the core interface for RPC endpoints.
type Provider = provider.Provider

// HTTPProvider implements Provider for JSON-RPC over HTTP.
type HTTPProvider = provider.HTTPProvider

// HealthStatus represents the health state of a provider.
type HealthStatus = provider.HealthStatus

// RPCError is a JSON-RPC error object returned by the node.
type RPCError = provider.RPCError

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return provider.NewHTTPProvider(name, endpoint, timeout)
}

// =============================================================================
// Re-exported types from routing package
// =============================================================================

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// DefaultRetryConfig makes exactly one attempt per call.
var DefaultRetryConfig = routing.DefaultRetryConfig

// CallWithRetry executes an RPC call with exponential backoff.
var CallWithRetry = routing.CallWithRetry
