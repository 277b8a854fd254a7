// Package llmutils builds a llm.CallFunc from configuration.
package llmutils

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/llm"
	"github.com/papercomputeco/sensei/pkg/llm/anthropic"
	"github.com/papercomputeco/sensei/pkg/llm/ollama"
	"github.com/papercomputeco/sensei/pkg/llm/openai"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

type NewCallerOpts struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string

	// JSON asks the provider for a JSON-only reply where supported.
	JSON bool

	// Name labels the caller in logs.
	Name   string
	Logger *zap.Logger
}

// NewCaller creates a llm.CallFunc. A hosted provider without an explicit
// key falls back to OPENAI_API_KEY / ANTHROPIC_API_KEY from the environment.
func NewCaller(o *NewCallerOpts) (llm.CallFunc, error) {
	provider := strings.ToLower(o.Provider)
	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = apiKeyFromEnv(provider)
	}

	var (
		call llm.CallFunc
		err  error
	)
	switch provider {
	case ProviderOpenAI:
		call, err = openai.New(openai.Config{BaseURL: hostedBaseURL(o.BaseURL), Model: o.Model, APIKey: apiKey, JSON: o.JSON})
	case ProviderAnthropic:
		call, err = anthropic.New(anthropic.Config{BaseURL: hostedBaseURL(o.BaseURL), Model: o.Model, APIKey: apiKey, JSON: o.JSON})
	case ProviderOllama, "":
		call = ollama.New(ollama.Config{BaseURL: o.BaseURL, Model: o.Model, JSON: o.JSON})
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", o.Provider)
	}
	if err != nil {
		return nil, err
	}

	return llm.WithLogging(call, o.Name, o.Logger), nil
}

// hostedBaseURL drops the local Ollama default so hosted providers use their
// own endpoint when only the provider was changed.
func hostedBaseURL(u string) string {
	if u == ollama.DefaultBaseURL {
		return ""
	}
	return u
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	default:
		return ""
	}
}
