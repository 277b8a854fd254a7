// Package anthropic calls the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/papercomputeco/sensei/pkg/llm"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-haiku-4-5"
	DefaultMaxTokens = 2048

	apiVersion = "2023-06-01"
	jsonSuffix = "\n\nReturn ONLY valid JSON, no markdown or extra text."
)

type Config struct {
	BaseURL    string
	Model      string
	APIKey     string
	MaxTokens  int
	JSON       bool
	HTTPClient *http.Client
}

// New returns a llm.CallFunc backed by /v1/messages. The Messages API has
// no JSON mode, so JSON callers get an instruction appended to the prompt.
func New(c Config) (llm.CallFunc, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", llm.ErrMissingAPIKey)
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: llm.DefaultTimeout}
	}
	target := strings.TrimRight(c.BaseURL, "/") + "/v1/messages"

	return func(ctx context.Context, prompt string) (string, error) {
		if c.JSON {
			prompt += jsonSuffix
		}
		data, err := json.Marshal(messagesRequest{
			Model:     c.Model,
			MaxTokens: c.MaxTokens,
			Messages:  []message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.APIKey)
		req.Header.Set("anthropic-version", apiVersion)

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("anthropic request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(body))
		}

		var result messagesResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("unmarshal response: %w", err)
		}
		if result.Error != nil {
			return "", fmt.Errorf("anthropic error: %s", result.Error.Message)
		}

		var b strings.Builder
		for _, block := range result.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		if b.Len() == 0 {
			return "", fmt.Errorf("anthropic: %w", llm.ErrEmptyReply)
		}
		return b.String(), nil
	}, nil
}
