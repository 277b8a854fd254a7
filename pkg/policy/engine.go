package policy

import (
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/logger"
	"github.com/papercomputeco/sensei/pkg/metrics"
)

// restrictedPrefixes are intent namespaces reserved for admin identities.
var restrictedPrefixes = []string{"system_", "admin_", "delete_", "destroy_"}

// Engine evaluates intents, tool calls and memory-save rules against the
// currently loaded Config. Evaluation is lock-free; Reload swaps the whole
// config atomically so an in-flight evaluation always sees one generation.
type Engine struct {
	cfg     atomic.Pointer[Config]
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewEngine builds an engine around an already validated config.
func NewEngine(cfg *Config, log *zap.Logger, m *metrics.Metrics) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	e := &Engine{logger: logger.OrNop(log), metrics: m}
	e.cfg.Store(cfg)
	return e, nil
}

// Config returns the current configuration generation.
func (e *Engine) Config() *Config {
	return e.cfg.Load()
}

// Reload atomically replaces the active configuration.
func (e *Engine) Reload(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	e.cfg.Store(cfg)
	e.logger.Info("policy config reloaded",
		zap.Int("tools", len(cfg.Manifest.Tools)),
		zap.Int("identities", len(cfg.Manifest.Identities)),
		zap.Int("memory_save_rules", len(cfg.rules)),
	)
	return nil
}

// ReloadFromFiles re-reads the files the current config was loaded from and
// swaps only if they parse and validate. On failure the old config stays.
func (e *Engine) ReloadFromFiles() error {
	cur := e.cfg.Load()
	if cur.manifestPath == "" && cur.governancePath == "" {
		return ErrNoSource
	}
	next, err := LoadConfig(cur.manifestPath, cur.governancePath)
	if err != nil {
		e.logger.Error("policy reload rejected", zap.Error(err))
		return err
	}
	return e.Reload(next)
}

// EvaluateIntent denies restricted intent namespaces to non-admin identities.
func (e *Engine) EvaluateIntent(intentID, userID, identityType string) Decision {
	d := e.evaluateIntent(e.cfg.Load(), intentID, identityType)
	e.record("intent", intentID, userID, identityType, d)
	return d
}

func (e *Engine) evaluateIntent(cfg *Config, intentID, identityType string) Decision {
	if _, ok := cfg.Manifest.Identities[identityType]; !ok {
		return deny(fmt.Sprintf("unknown identity type %q", identityType))
	}
	for _, prefix := range restrictedPrefixes {
		if strings.HasPrefix(intentID, prefix) && identityType != AdminIdentity {
			return deny(fmt.Sprintf("intent %q is restricted to %s identities", intentID, AdminIdentity))
		}
	}
	return allow("intent permitted")
}

// EvaluateToolCall runs the ordered tool checks; the first failing check
// supplies the reason.
func (e *Engine) EvaluateToolCall(toolID, userID, identityType string) Decision {
	d := e.evaluateToolCall(e.cfg.Load(), toolID, identityType)
	e.record("tool", toolID, userID, identityType, d)
	return d
}

func (e *Engine) evaluateToolCall(cfg *Config, toolID, identityType string) Decision {
	ident, ok := cfg.Manifest.Identities[identityType]
	if !ok {
		return deny(fmt.Sprintf("unknown identity type %q", identityType))
	}

	if !slices.Contains(ident.ToolAccess, Wildcard) && !slices.Contains(ident.ToolAccess, toolID) {
		return deny(fmt.Sprintf("tool %q is not permitted for identity %q", toolID, identityType))
	}

	if _, ok := cfg.tools[toolID]; !ok {
		return deny(fmt.Sprintf("tool %q is not in the capability manifest", toolID))
	}

	if g, ok := cfg.guardrails[toolID]; ok && g.RequiresApproval {
		reason := fmt.Sprintf("tool %q requires manual approval", toolID)
		if g.Reason != "" {
			reason += ": " + g.Reason
		}
		return deny(reason)
	}

	return allow("tool call permitted")
}

// EvaluateMemorySave returns the highest-priority save rule matching text,
// or nil when no rule matches.
func (e *Engine) EvaluateMemorySave(text string) *SaveMatch {
	cfg := e.cfg.Load()
	for _, r := range cfg.rules {
		if r.re.MatchString(text) {
			m := &SaveMatch{Type: r.Type, Action: r.Action, Priority: r.Priority}
			e.metrics.IncPolicyDecision("memory_save", true)
			e.logger.Debug("memory save rule matched", zap.String("type", m.Type), zap.Int("priority", m.Priority))
			return m
		}
	}
	e.metrics.IncPolicyDecision("memory_save", false)
	return nil
}

func (e *Engine) record(kind, subject, userID, identityType string, d Decision) {
	e.metrics.IncPolicyDecision(kind, d.Allowed)
	e.logger.Debug("policy decision",
		zap.String("kind", kind),
		zap.String("subject", subject),
		zap.String("user_id", userID),
		zap.String("identity_type", identityType),
		zap.Bool("allowed", d.Allowed),
		zap.String("reason", d.Reason),
	)
}
