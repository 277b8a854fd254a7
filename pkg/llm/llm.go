// Package llm holds the single-shot model call used for classification,
// extraction, and summarization.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CallFunc sends one prompt to a model and returns its text reply. It carries
// no conversation state.
type CallFunc func(ctx context.Context, prompt string) (string, error)

// DefaultTimeout bounds a single provider request.
const DefaultTimeout = 2 * time.Minute

// ExtractJSON returns the outermost JSON object or array in a model reply.
// Markdown code fences and surrounding prose are ignored.
func ExtractJSON(response string) (string, bool) {
	s := strings.TrimSpace(response)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "JSON")
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// DecodeJSON extracts and unmarshals the JSON payload of a model reply into v.
func DecodeJSON(response string, v any) error {
	raw, ok := ExtractJSON(response)
	if !ok {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("unmarshal model JSON: %w", err)
	}
	return nil
}

// WithLogging wraps call so every request is logged at debug level with its
// latency, and failures at warn.
func WithLogging(call CallFunc, name string, logger *zap.Logger) CallFunc {
	if logger == nil {
		return call
	}
	return func(ctx context.Context, prompt string) (string, error) {
		start := time.Now()
		out, err := call(ctx, prompt)
		fields := []zap.Field{
			zap.String("caller", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("prompt_chars", len(prompt)),
		}
		if err != nil {
			logger.Warn("model call failed", append(fields, zap.Error(err))...)
			return "", err
		}
		logger.Debug("model call", append(fields, zap.Int("reply_chars", len(out)))...)
		return out, nil
	}
}
