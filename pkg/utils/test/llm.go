package testutils

import (
	"context"
	"sync"
	"time"
)

// ScriptedLLM is a fake model call. Replies are served from Responses in
// order; once exhausted, Default is returned.
type ScriptedLLM struct {
	mu sync.Mutex

	Responses []string
	Default   string

	// Respond, when set, computes the reply from the prompt instead.
	Respond func(prompt string) (string, error)

	Err   error
	Delay time.Duration

	Prompts []string
}

func NewScriptedLLM(responses ...string) *ScriptedLLM {
	return &ScriptedLLM{Responses: responses}
}

// Call matches llm.CallFunc.
func (s *ScriptedLLM) Call(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.Prompts = append(s.Prompts, prompt)
	delay := s.Delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return "", s.Err
	}
	if s.Respond != nil {
		return s.Respond(prompt)
	}
	if len(s.Responses) > 0 {
		out := s.Responses[0]
		s.Responses = s.Responses[1:]
		return out, nil
	}
	return s.Default, nil
}

// CallCount returns how many prompts have been sent.
func (s *ScriptedLLM) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Prompts)
}

// PromptsSnapshot returns a copy of the recorded prompts.
func (s *ScriptedLLM) PromptsSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Prompts...)
}
