// Package memorywriter is the background consumer that turns classified
// interactions and finished episodes into long-term memory.
//
// Writes are keyed so a redelivered task overwrites its earlier result
// instead of duplicating it.
package memorywriter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/episode"
	"github.com/papercomputeco/sensei/pkg/gatekeeper"
	"github.com/papercomputeco/sensei/pkg/llm"
	"github.com/papercomputeco/sensei/pkg/memory"
	"github.com/papercomputeco/sensei/pkg/policy"
	"github.com/papercomputeco/sensei/pkg/storage"
	"github.com/papercomputeco/sensei/pkg/study"
	"github.com/papercomputeco/sensei/pkg/utils"
)

// StruggleRule is the memory-save rule type that records a study struggle.
const StruggleRule = "learning_struggle"

// Classifier triages an exchange.
type Classifier interface {
	EvaluateInteraction(ctx context.Context, userMessage, agentMessage string) gatekeeper.Classification
}

// SaveRules matches deterministic memory-save rules.
type SaveRules interface {
	EvaluateMemorySave(text string) *policy.SaveMatch
}

// EpisodeSummarizer summarizes a message range.
type EpisodeSummarizer interface {
	SummarizeMessages(ctx context.Context, prior string, msgs []*storage.Message) (string, error)
}

type Config struct {
	Classifier Classifier
	Episodic   memory.EpisodicStore

	// Optional collaborators. Without Semantic or Extract, fact-like
	// interactions are kept in episodic memory.
	Rules    SaveRules
	Semantic memory.SemanticStore
	Extract  llm.CallFunc
	Study    study.Recorder

	// Episode finalization.
	Episodes   *episode.Manager
	Messages   storage.MessageStore
	Summarizer EpisodeSummarizer

	Logger *zap.Logger
}

// Interaction is one user/agent exchange within a session.
type Interaction struct {
	SessionID      string
	UserID         string
	StartMessageID int64
	EndMessageID   int64
	UserMessage    string
	AgentMessage   string
}

// Outcome reports what WriteInteraction did.
type Outcome struct {
	Classification gatekeeper.Classification
	Destination    gatekeeper.Destination
	Rule           *policy.SaveMatch
	Triples        int
}

type Writer struct {
	c      Config
	logger *zap.Logger
	now    func() time.Time
}

func New(c Config) (*Writer, error) {
	if c.Classifier == nil || c.Episodic == nil {
		return nil, errors.New("memory writer requires a classifier and an episodic store")
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{c: c, logger: logger, now: func() time.Time { return time.Now().UTC() }}, nil
}

// IdempotencyKey identifies an interaction by its session and message span.
func IdempotencyKey(sessionID string, startMessageID, endMessageID int64) string {
	return sessionID + ":" + strconv.FormatInt(startMessageID, 10) + "-" + strconv.FormatInt(endMessageID, 10)
}

// WriteInteraction classifies in and persists it where it belongs. Session
// and forgettable interactions are never written.
func (w *Writer) WriteInteraction(ctx context.Context, in Interaction) (Outcome, error) {
	log := w.logger.With(zap.String("user_id", in.UserID), zap.String("session_id", in.SessionID))

	c := w.c.Classifier.EvaluateInteraction(ctx, in.UserMessage, in.AgentMessage)
	out := Outcome{Classification: c, Destination: gatekeeper.Route(c)}

	if w.c.Rules != nil {
		out.Rule = w.c.Rules.EvaluateMemorySave(in.UserMessage)
	}
	if rule := out.Rule; rule != nil {
		out.Classification, out.Destination = applyRule(c, out.Destination, rule)
		if rule.Type == StruggleRule {
			w.recordStruggle(ctx, log, in, out.Classification)
		}
	}

	switch out.Destination {
	case gatekeeper.DestinationDiscard:
		log.Debug("interaction not persisted",
			zap.String("scope", string(out.Classification.Scope)),
			zap.String("reason", out.Classification.Reason),
		)
		return out, nil

	case gatekeeper.DestinationSemantic:
		n, err := w.writeSemantic(ctx, in)
		if err == nil {
			out.Triples = n
			log.Info("stored semantic memory", zap.Int("triples", n))
			return out, nil
		}
		if !errors.Is(err, ErrNoTriples) && !errors.Is(err, llm.ErrNoJSON) && !errors.Is(err, errNoSemantic) {
			return out, err
		}
		log.Debug("falling back to episodic memory", zap.Error(err))
		out.Destination = gatekeeper.DestinationEpisodic
	}

	if err := w.writeEpisodic(ctx, in, out.Classification); err != nil {
		return out, err
	}
	log.Info("stored episodic memory",
		zap.String("category", out.Classification.Category),
		zap.Int("priority", out.Classification.Priority),
	)
	return out, nil
}

// applyRule lifts the priority to the rule's floor. A classification that
// degraded on a model or parse failure is replaced by the rule's verdict.
func applyRule(c gatekeeper.Classification, dest gatekeeper.Destination, rule *policy.SaveMatch) (gatekeeper.Classification, gatekeeper.Destination) {
	if c.Reason == gatekeeper.ReasonModelError || c.Reason == gatekeeper.ReasonParseError {
		c = gatekeeper.Classification{
			IsMemorable: true,
			Scope:       gatekeeper.ScopePermanent,
			Category:    rule.Type,
			Reason:      "matched memory save rule " + rule.Type,
			Priority:    rule.Priority,
		}
		switch rule.Action {
		case policy.ActionSaveSemantic:
			return c, gatekeeper.DestinationSemantic
		case policy.ActionSaveEpisodic:
			return c, gatekeeper.DestinationEpisodic
		}
		return c, gatekeeper.Route(c)
	}

	if dest != gatekeeper.DestinationDiscard && rule.Priority > c.Priority {
		c.Priority = min(rule.Priority, gatekeeper.MaxPriority)
	}
	return c, dest
}

func (w *Writer) recordStruggle(ctx context.Context, log *zap.Logger, in Interaction, c gatekeeper.Classification) {
	if w.c.Study == nil {
		return
	}
	topic := c.Category
	if topic == "" || topic == gatekeeper.CategorySmallTalk || topic == StruggleRule {
		topic = utils.Truncate(utils.NormalizeSpace(in.UserMessage), 80)
	}
	if err := w.c.Study.RecordStruggle(ctx, in.UserID, topic); err != nil {
		log.Warn("could not record struggle", zap.String("topic", topic), zap.Error(err))
	}
}

var errNoSemantic = errors.New("semantic memory not configured")

func (w *Writer) writeSemantic(ctx context.Context, in Interaction) (int, error) {
	if w.c.Semantic == nil || w.c.Extract == nil {
		return 0, errNoSemantic
	}
	triples, err := extractTriples(ctx, w.c.Extract, in.UserMessage, in.AgentMessage)
	if err != nil {
		return 0, err
	}
	key := IdempotencyKey(in.SessionID, in.StartMessageID, in.EndMessageID)
	for i := range triples {
		triples[i].Properties = map[string]any{memory.MetaIdempotencyKey: key}
	}
	if err := w.c.Semantic.UpsertRelationships(ctx, triples, in.UserID); err != nil {
		return 0, fmt.Errorf("upserting relationships: %w", err)
	}
	return len(triples), nil
}

func (w *Writer) writeEpisodic(ctx context.Context, in Interaction, c gatekeeper.Classification) error {
	text := "Learner: " + in.UserMessage + "\nTutor: " + in.AgentMessage
	meta := map[string]string{
		memory.MetaIdempotencyKey: IdempotencyKey(in.SessionID, in.StartMessageID, in.EndMessageID),
		memory.MetaCreatedAt:      w.now().Format(time.RFC3339Nano),
		memory.MetaCategory:       c.Category,
	}
	if err := w.c.Episodic.Insert(ctx, text, in.UserID, meta); err != nil {
		return fmt.Errorf("inserting episodic memory: %w", err)
	}
	return nil
}
