// Package runtime strings the components together around one tutoring turn:
// authorize and assemble context, record messages, and package the reply.
package runtime

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/aperture"
	"github.com/papercomputeco/sensei/pkg/artifact"
	"github.com/papercomputeco/sensei/pkg/episode"
	"github.com/papercomputeco/sensei/pkg/governor"
	"github.com/papercomputeco/sensei/pkg/memorywriter"
	"github.com/papercomputeco/sensei/pkg/policy"
	"github.com/papercomputeco/sensei/pkg/queue"
	"github.com/papercomputeco/sensei/pkg/storage"
	"github.com/papercomputeco/sensei/pkg/summarizer"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Config struct {
	Policy    *policy.Engine
	Assembler *aperture.Assembler
	Messages  storage.MessageStore
	Episodes  *episode.Manager
	Governor  *governor.Governor

	// Queue receives memory extraction and summarization tasks. Nil
	// disables background work.
	Queue queue.Queue

	// MaxPendingPrompts bounds how many sessions may hold an unanswered
	// user message. The oldest is forgotten first. Defaults to 4096.
	MaxPendingPrompts int

	Logger *zap.Logger
}

const defaultMaxPendingPrompts = 4096

type Runtime struct {
	c      Config
	logger *zap.Logger

	// lastUser holds each session's latest user message until the reply
	// that completes the exchange is recorded. pending orders sessions
	// oldest first for eviction.
	mu       sync.Mutex
	lastUser map[string]*list.Element
	pending  *list.List
}

type pendingPrompt struct {
	sessionID string
	msg       *storage.Message
}

func New(c Config) (*Runtime, error) {
	if c.Policy == nil || c.Assembler == nil || c.Messages == nil || c.Governor == nil {
		return nil, errors.New("runtime requires a policy engine, an assembler, a message store and a governor")
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if c.MaxPendingPrompts <= 0 {
		c.MaxPendingPrompts = defaultMaxPendingPrompts
	}
	return &Runtime{
		c:        c,
		logger:   logger,
		lastUser: make(map[string]*list.Element),
		pending:  list.New(),
	}, nil
}

// PendingPrompts reports how many sessions hold an unanswered user message.
func (r *Runtime) PendingPrompts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.Len()
}

func (r *Runtime) rememberPrompt(sessionID string, m *storage.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if el, ok := r.lastUser[sessionID]; ok {
		el.Value.(*pendingPrompt).msg = m
		r.pending.MoveToBack(el)
		return
	}
	r.lastUser[sessionID] = r.pending.PushBack(&pendingPrompt{sessionID: sessionID, msg: m})

	for r.pending.Len() > r.c.MaxPendingPrompts {
		oldest := r.pending.Front()
		r.pending.Remove(oldest)
		delete(r.lastUser, oldest.Value.(*pendingPrompt).sessionID)
	}
}

func (r *Runtime) takePrompt(sessionID string) *storage.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.lastUser[sessionID]
	if !ok {
		return nil
	}
	r.pending.Remove(el)
	delete(r.lastUser, sessionID)
	return el.Value.(*pendingPrompt).msg
}

// TurnRequest opens a turn.
type TurnRequest struct {
	UserID       string
	SessionID    string
	IdentityType string

	// IntentID is checked against the policy when set.
	IntentID string

	Query       string
	ResourceIDs []string
}

// Turn is what the agent sees before generating its reply.
type Turn struct {
	Decision  policy.Decision         `json:"decision"`
	Context   aperture.LearnerContext `json:"context"`
	Narrative string                  `json:"narrative"`
}

// BeginTurn authorizes the turn's intent and assembles the learner context.
// A denied intent returns ErrIntentDenied and skips assembly.
func (r *Runtime) BeginTurn(ctx context.Context, req TurnRequest) (Turn, error) {
	turn := Turn{Decision: policy.Decision{Allowed: true, Reason: "no intent declared"}}

	if req.IntentID != "" {
		turn.Decision = r.c.Policy.EvaluateIntent(req.IntentID, req.UserID, req.IdentityType)
		if !turn.Decision.Allowed {
			return turn, fmt.Errorf("%w: %s", ErrIntentDenied, turn.Decision.Reason)
		}
	}

	turn.Context = r.c.Assembler.Assemble(ctx, aperture.Request{
		Query:       req.Query,
		UserID:      req.UserID,
		ResourceIDs: req.ResourceIDs,
	})
	turn.Narrative = turn.Context.Narrative()
	return turn, nil
}

// RecordMessage stores one message of the session and attaches it to the
// open episode. An assistant message that answers a recorded user message
// queues the exchange for memory extraction and the conversation for
// summarization. Episode and queue failures are logged; the message is
// already stored.
func (r *Runtime) RecordMessage(ctx context.Context, sessionID, userID, role, content string, attachments []storage.Attachment) (*storage.Message, error) {
	m, err := r.c.Messages.AppendMessage(ctx, &storage.Message{
		ConversationID: sessionID,
		Role:           role,
		Content:        content,
		Attachments:    attachments,
	})
	if err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}

	log := r.logger.With(zap.String("session_id", sessionID), zap.Int64("message_id", m.ID))

	if r.c.Episodes != nil {
		if _, err := r.c.Episodes.AddMessageToEpisode(ctx, sessionID, m.ID, episode.WithUserID(userID)); err != nil {
			log.Warn("episode bookkeeping failed", zap.Error(err))
		}
	}

	switch role {
	case RoleUser:
		r.rememberPrompt(sessionID, m)
	case RoleAssistant:
		prompt := r.takePrompt(sessionID)

		if prompt != nil {
			r.enqueue(ctx, log, queue.TaskExtractInteraction, memorywriter.InteractionKwargs(memorywriter.Interaction{
				SessionID:      sessionID,
				UserID:         userID,
				StartMessageID: prompt.ID,
				EndMessageID:   m.ID,
				UserMessage:    prompt.Content,
				AgentMessage:   content,
			}))
		}
		r.enqueue(ctx, log, queue.TaskSummarizeConversation, map[string]any{
			summarizer.KwargConversationID: sessionID,
		})
	}

	return m, nil
}

func (r *Runtime) enqueue(ctx context.Context, log *zap.Logger, task string, kwargs map[string]any) {
	if r.c.Queue == nil {
		return
	}
	if err := r.c.Queue.Enqueue(ctx, task, kwargs); err != nil {
		log.Warn("could not enqueue task", zap.String("task", task), zap.Error(err))
	}
}

// FinishRequest carries the model's final output for a turn.
type FinishRequest struct {
	UserID      string
	SessionID   string
	Content     string
	Proposals   []artifact.Proposal
	Suggestions []string
}

// FinishTurn packages the reply through the governor and records it as the
// session's assistant message.
func (r *Runtime) FinishTurn(ctx context.Context, req FinishRequest) (governor.UnifiedOutput, error) {
	out, err := r.c.Governor.Package(ctx, req.UserID, req.Content, req.Proposals, req.Suggestions)
	if err != nil {
		return governor.UnifiedOutput{}, err
	}

	attachments := make([]storage.Attachment, len(out.Artifacts))
	for i, a := range out.Artifacts {
		attachments[i] = storage.Attachment{Type: a.Type, Title: a.Title}
	}
	if _, err := r.RecordMessage(ctx, req.SessionID, req.UserID, RoleAssistant, out.Message, attachments); err != nil {
		return governor.UnifiedOutput{}, err
	}
	return out, nil
}
