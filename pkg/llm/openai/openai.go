// Package openai calls the OpenAI Chat Completions API.
package openai

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
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "gpt-4o-mini"
)

type Config struct {
	BaseURL    string
	Model      string
	APIKey     string
	JSON       bool
	HTTPClient *http.Client
}

// New returns a llm.CallFunc backed by /v1/chat/completions.
func New(c Config) (llm.CallFunc, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", llm.ErrMissingAPIKey)
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: llm.DefaultTimeout}
	}
	target := strings.TrimRight(c.BaseURL, "/") + "/v1/chat/completions"

	return func(ctx context.Context, prompt string) (string, error) {
		reqBody := chatRequest{
			Model:    c.Model,
			Messages: []chatMessage{{Role: "user", Content: prompt}},
		}
		if c.JSON {
			reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
		}

		data, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.APIKey)

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("openai request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(body))
		}

		var result chatResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("unmarshal response: %w", err)
		}
		if result.Error != nil {
			return "", fmt.Errorf("openai error: %s", result.Error.Message)
		}
		if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
			return "", fmt.Errorf("openai: %w", llm.ErrEmptyReply)
		}

		return result.Choices[0].Message.Content, nil
	}, nil
}
