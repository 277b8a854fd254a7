package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/aperture"
	"github.com/papercomputeco/sensei/pkg/policy"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ToolRequest asks whether an identity may call a tool.
type ToolRequest struct {
	ToolID       string `json:"tool_id"`
	UserID       string `json:"user_id"`
	IdentityType string `json:"identity_type"`
}

// IntentRequest asks whether an identity may run an intent.
type IntentRequest struct {
	IntentID     string `json:"intent_id"`
	UserID       string `json:"user_id"`
	IdentityType string `json:"identity_type"`
}

// MemorySaveRequest asks which save rule, if any, matches a text.
type MemorySaveRequest struct {
	Text string `json:"text"`
}

// MemorySaveResponse carries the matching rule, or null.
type MemorySaveResponse struct {
	Match *policy.SaveMatch `json:"match"`
}

// ContextRequest asks for a learner context snapshot.
type ContextRequest struct {
	UserID      string   `json:"user_id"`
	Query       string   `json:"query"`
	ResourceIDs []string `json:"resource_ids,omitempty"`

	// TimeoutMS overrides the configured deadline when positive.
	TimeoutMS int64 `json:"timeout_ms,omitempty"`
}

// ContextResponse is the assembled snapshot and its prompt rendering.
type ContextResponse struct {
	Context   aperture.LearnerContext `json:"context"`
	Narrative string                  `json:"narrative"`
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handlePolicyReload re-reads the policy files. A file that fails
// validation leaves the running policy in place.
func (s *Server) handlePolicyReload(c *fiber.Ctx) error {
	err := s.policy.ReloadFromFiles()
	switch {
	case errors.Is(err, policy.ErrNoSource):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	case err != nil:
		s.logger.Warn("policy reload failed", zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(map[string]any{"status": "reloaded"})
}

func (s *Server) handleEvaluateTool(c *fiber.Ctx) error {
	var req ToolRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ToolID == "" || req.IdentityType == "" {
		return badRequest(c, "tool_id and identity_type are required")
	}
	return c.JSON(s.policy.EvaluateToolCall(req.ToolID, req.UserID, req.IdentityType))
}

func (s *Server) handleEvaluateIntent(c *fiber.Ctx) error {
	var req IntentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.IntentID == "" {
		return badRequest(c, "intent_id is required")
	}
	return c.JSON(s.policy.EvaluateIntent(req.IntentID, req.UserID, req.IdentityType))
}

func (s *Server) handleEvaluateMemorySave(c *fiber.Ctx) error {
	var req MemorySaveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	return c.JSON(MemorySaveResponse{Match: s.policy.EvaluateMemorySave(req.Text)})
}

// handleAssembleContext never fails on store errors: the assembler degrades
// to an empty snapshot instead.
func (s *Server) handleAssembleContext(c *fiber.Ctx) error {
	var req ContextRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "user_id is required")
	}

	lc := s.assembler.Assemble(c.UserContext(), aperture.Request{
		Query:       req.Query,
		UserID:      req.UserID,
		ResourceIDs: req.ResourceIDs,
		Timeout:     time.Duration(req.TimeoutMS) * time.Millisecond,
	})

	return c.JSON(ContextResponse{Context: lc, Narrative: lc.Narrative()})
}
