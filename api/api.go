package api

import (
	"errors"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/aperture"
	"github.com/papercomputeco/sensei/pkg/logger"
	"github.com/papercomputeco/sensei/pkg/policy"
)

// Server is the operator API server.
type Server struct {
	config    Config
	policy    *policy.Engine
	assembler *aperture.Assembler
	logger    *zap.Logger
	app       *fiber.App
}

// NewServer creates a new API server. The policy engine and assembler are
// shared with the rest of the process so a reload here is seen everywhere.
func NewServer(config Config, engine *policy.Engine, assembler *aperture.Assembler, log *zap.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("policy engine is required")
	}
	if assembler == nil {
		return nil, errors.New("context assembler is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:    config,
		policy:    engine,
		assembler: assembler,
		logger:    logger.OrNop(log),
		app:       app,
	}

	app.Get("/ping", s.handlePing)

	app.Post("/policy/reload", s.handlePolicyReload)
	app.Post("/policy/evaluate/tool", s.handleEvaluateTool)
	app.Post("/policy/evaluate/intent", s.handleEvaluateIntent)
	app.Post("/policy/evaluate/memory-save", s.handleEvaluateMemorySave)

	app.Post("/context", s.handleAssembleContext)

	if config.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(config.Metrics.Handler()))
	}
	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
