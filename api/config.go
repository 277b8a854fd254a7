// Package api provides the operator HTTP API: policy evaluation and reload,
// context assembly, prometheus metrics and the MCP endpoint.
package api

import (
	"net/http"

	"github.com/papercomputeco/sensei/pkg/metrics"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8090")
	ListenAddr string

	// Metrics is served on /metrics when set.
	Metrics *metrics.Metrics

	// MCP is mounted on /mcp when set.
	MCP http.Handler
}
