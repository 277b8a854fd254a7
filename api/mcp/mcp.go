// Package mcp provides an MCP (Model Context Protocol) server exposing the
// context assembler and the tool-call policy to agents.
package mcp

import (
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/aperture"
	"github.com/papercomputeco/sensei/pkg/policy"
	"github.com/papercomputeco/sensei/pkg/utils"
)

type Config struct {
	// Assembler builds learner context for the assemble_context tool
	Assembler *aperture.Assembler

	// Policy answers the evaluate_tool_call tool
	Policy *policy.Engine

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured zap logger
	Logger *zap.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the context and policy tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "sensei",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Assembler == nil {
			return nil, errors.New("context assembler is required")
		}
		if c.Policy == nil {
			return nil, errors.New("policy engine is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        assembleContextToolName,
			Description: assembleContextDescription,
		}, s.handleAssembleContext)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        evaluateToolCallToolName,
			Description: evaluateToolCallDescription,
		}, s.handleEvaluateToolCall)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
