// Package gatekeeper triages raw interactions into forget, session-scoped, or
// permanent before anything reaches long-term memory.
package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/llm"
	"github.com/papercomputeco/sensei/pkg/metrics"
)

// Scope is how long a classified interaction should be remembered.
type Scope string

const (
	ScopePermanent Scope = "permanent"
	ScopeSession   Scope = "session"
	ScopeNone      Scope = "none"
)

// Priority bounds.
const (
	MinPriority = 1
	MaxPriority = 5
)

// Reasons attached to degraded classifications.
const (
	ReasonParseError = "parse error"
	ReasonModelError = "model error"
	ReasonSmallTalk  = "greetings and politeness are never memorable"

	CategorySmallTalk = "small_talk"
)

// Classification is the gatekeeper's verdict on one interaction.
type Classification struct {
	IsMemorable bool   `json:"is_memorable"`
	Scope       Scope  `json:"scope"`
	Category    string `json:"category"`
	Reason      string `json:"reason"`
	Priority    int    `json:"priority"`
}

// Forget is the safe default: not memorable, nothing persisted.
func Forget(reason string) Classification {
	return Classification{Scope: ScopeNone, Reason: reason, Priority: MinPriority}
}

type Config struct {
	// Call is the classification model. Required.
	Call    llm.CallFunc
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

type Gatekeeper struct {
	call    llm.CallFunc
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(c Config) (*Gatekeeper, error) {
	if c.Call == nil {
		return nil, errors.New("gatekeeper: model call is required")
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gatekeeper{call: c.Call, metrics: c.Metrics, logger: logger}, nil
}

// EvaluateInteraction classifies one user/agent exchange. It never fails:
// model and parse errors degrade to Forget.
func (g *Gatekeeper) EvaluateInteraction(ctx context.Context, userMessage, agentMessage string) Classification {
	c := g.evaluate(ctx, userMessage, agentMessage)
	g.metrics.IncClassification(string(c.Scope))
	return c
}

func (g *Gatekeeper) evaluate(ctx context.Context, userMessage, agentMessage string) Classification {
	if IsSmallTalk(userMessage) {
		c := Forget(ReasonSmallTalk)
		c.Category = CategorySmallTalk
		return c
	}

	reply, err := g.call(ctx, buildPrompt(userMessage, agentMessage))
	if err != nil {
		g.logger.Warn("classification call failed", zap.Error(err))
		return Forget(ReasonModelError)
	}

	c, err := parse(reply)
	if err != nil {
		g.logger.Warn("unparseable classification",
			zap.String("reply", reply),
			zap.Error(err),
		)
		return Forget(ReasonParseError)
	}

	g.logger.Debug("interaction classified",
		zap.Bool("memorable", c.IsMemorable),
		zap.String("scope", string(c.Scope)),
		zap.String("category", c.Category),
		zap.Int("priority", c.Priority),
	)
	return c
}

func buildPrompt(userMessage, agentMessage string) string {
	var b strings.Builder
	b.WriteString(rubric)
	b.WriteString("\n\nUser message:\n")
	b.WriteString(userMessage)
	b.WriteString("\n\nTutor response:\n")
	b.WriteString(agentMessage)
	return b.String()
}

const rubric = `You decide what a language tutor should remember about a learner.
Classify the interaction below into exactly one scope:

PERMANENT: durable facts about the learner, long-term goals, preferences,
persistent struggles, background, and relationships. Worth recalling weeks later.
SESSION: instructions or roleplay that only matter for the current conversation.
IGNORE: greetings, small talk, politeness, acknowledgements, or repetition of
facts already known. Greetings and politeness are NEVER memorable.

Return ONLY valid JSON:
{
  "is_memorable": true or false,
  "scope": "permanent" | "session" | "none",
  "category": "fact" | "preference" | "goal" | "relationship" | "profile" | "learning_struggle" | "progress" | "instruction" | "small_talk" | "other",
  "reason": "one short sentence",
  "priority": 1-5 (5 is most important)
}`

// wire accepts both snake and camel case from models that drift.
type wire struct {
	IsMemorable      *bool  `json:"is_memorable"`
	IsMemorableCamel *bool  `json:"isMemorable"`
	Scope            string `json:"scope"`
	Category         string `json:"category"`
	Reason           string `json:"reason"`
	Priority         int    `json:"priority"`
}

func parse(reply string) (Classification, error) {
	var w wire
	if err := llm.DecodeJSON(reply, &w); err != nil {
		return Classification{}, err
	}

	memorable := w.IsMemorable
	if memorable == nil {
		memorable = w.IsMemorableCamel
	}
	if memorable == nil {
		return Classification{}, fmt.Errorf("missing is_memorable")
	}

	return normalize(Classification{
		IsMemorable: *memorable,
		Scope:       Scope(w.Scope),
		Category:    w.Category,
		Reason:      w.Reason,
		Priority:    w.Priority,
	}), nil
}

// normalize enforces the classification invariants: scope is one of the
// three known values, priority is within bounds, and a non-memorable
// interaction always has scope none.
func normalize(c Classification) Classification {
	switch s := Scope(strings.ToLower(strings.TrimSpace(string(c.Scope)))); s {
	case ScopePermanent, ScopeSession:
		c.Scope = s
	default:
		c.Scope = ScopeNone
	}
	if !c.IsMemorable || c.Scope == ScopeNone {
		c.IsMemorable = false
		c.Scope = ScopeNone
	}

	c.Category = strings.ToLower(strings.TrimSpace(c.Category))
	c.Priority = min(max(c.Priority, MinPriority), MaxPriority)
	return c
}
