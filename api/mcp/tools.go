package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/aperture"
	"github.com/papercomputeco/sensei/pkg/policy"
)

var (
	assembleContextToolName    = "assemble_context"
	assembleContextDescription = "Assemble the learner's context for the current turn: relevant resource excerpts, episodic memories, study plan state and recent artifacts. Returns the structured snapshot and a narrative suitable for a system prompt. Never fails; an empty snapshot means nothing was available in time."

	evaluateToolCallToolName    = "evaluate_tool_call"
	evaluateToolCallDescription = "Check whether a caller identity may invoke a tool under the current capability manifest and governance rules. Call this before executing any tool on the learner's behalf."
)

// AssembleContextInput represents the input arguments for the assemble_context tool.
type AssembleContextInput struct {
	UserID      string   `json:"user_id" jsonschema:"the learner whose context to assemble"`
	Query       string   `json:"query" jsonschema:"the learner's current message, used to rank memories and resources"`
	ResourceIDs []string `json:"resource_ids,omitempty" jsonschema:"resources attached to this turn, if any"`
}

// AssembleContextOutput is the structured result of assemble_context.
type AssembleContextOutput struct {
	Context   aperture.LearnerContext `json:"context"`
	Narrative string                  `json:"narrative"`
}

// EvaluateToolCallInput represents the input arguments for the evaluate_tool_call tool.
type EvaluateToolCallInput struct {
	ToolID       string `json:"tool_id" jsonschema:"the tool about to be invoked"`
	UserID       string `json:"user_id,omitempty" jsonschema:"the learner the call is made for"`
	IdentityType string `json:"identity_type" jsonschema:"the caller identity type, e.g. user, guest or admin"`
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}, nil
}

func (s *Server) handleAssembleContext(ctx context.Context, _ *mcp.CallToolRequest, input AssembleContextInput) (*mcp.CallToolResult, AssembleContextOutput, error) {
	if input.UserID == "" {
		return errorResult("user_id is required"), AssembleContextOutput{}, nil
	}

	lc := s.config.Assembler.Assemble(ctx, aperture.Request{
		Query:       input.Query,
		UserID:      input.UserID,
		ResourceIDs: input.ResourceIDs,
	})
	output := AssembleContextOutput{Context: lc, Narrative: lc.Narrative()}

	s.config.Logger.Debug("mcp assemble_context",
		zap.String("user_id", input.UserID),
		zap.Bool("empty", lc.Empty()),
	)

	result, err := jsonResult(output)
	if err != nil {
		return errorResult("Failed to serialize context: %v", err), AssembleContextOutput{}, nil
	}
	return result, output, nil
}

func (s *Server) handleEvaluateToolCall(_ context.Context, _ *mcp.CallToolRequest, input EvaluateToolCallInput) (*mcp.CallToolResult, policy.Decision, error) {
	if input.ToolID == "" || input.IdentityType == "" {
		return errorResult("tool_id and identity_type are required"), policy.Decision{}, nil
	}

	d := s.config.Policy.EvaluateToolCall(input.ToolID, input.UserID, input.IdentityType)

	result, err := jsonResult(d)
	if err != nil {
		return errorResult("Failed to serialize decision: %v", err), policy.Decision{}, nil
	}
	return result, d, nil
}
