// Package ollama calls a local Ollama server's chat endpoint.
package ollama

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
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"
)

type Config struct {
	BaseURL    string
	Model      string
	JSON       bool
	HTTPClient *http.Client
}

// New returns a llm.CallFunc backed by /api/chat with streaming disabled.
func New(c Config) llm.CallFunc {
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
	target := strings.TrimRight(c.BaseURL, "/") + "/api/chat"

	return func(ctx context.Context, prompt string) (string, error) {
		request := chatRequest{
			Model:    c.Model,
			Messages: []chatMessage{{Role: "user", Content: prompt}},
		}
		if c.JSON {
			request.Format = "json"
		}

		payload, err := json.Marshal(request)
		if err != nil {
			return "", fmt.Errorf("marshal ollama request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("create ollama request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("send ollama request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, string(body))
		}

		var response chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
			return "", fmt.Errorf("decode ollama response: %w", err)
		}
		if response.Error != "" {
			return "", fmt.Errorf("ollama error: %s", response.Error)
		}
		if response.Message.Content == "" {
			return "", fmt.Errorf("ollama: %w", llm.ErrEmptyReply)
		}

		return response.Message.Content, nil
	}
}
