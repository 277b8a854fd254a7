// Package summarizer folds a conversation's older messages into a running
// summary.
//
// The newest RawBuffer messages are always left verbatim. Everything older
// than that and newer than the stored bookmark is summarized on top of the
// existing summary, and the summary and bookmark are written together with a
// compare-and-set. Long batches are split into word-bounded chunks that are
// summarized in parallel and then merged; merged text over the token budget
// is condensed again, up to MaxDepth passes.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/sensei/pkg/llm"
	"github.com/papercomputeco/sensei/pkg/metrics"
	"github.com/papercomputeco/sensei/pkg/queue"
	"github.com/papercomputeco/sensei/pkg/storage"
	"github.com/papercomputeco/sensei/pkg/utils"
)

const (
	DefaultRawBuffer   = 6
	DefaultChunkWords  = 3000
	DefaultTokenBudget = 6000
	DefaultMaxDepth    = 3
	DefaultParallelism = 4
)

// KwargConversationID is the conversation.summarize task argument.
const KwargConversationID = "conversation_id"

// Store is the slice of storage the summarizer needs.
type Store interface {
	storage.MessageStore
	storage.ConversationStore
}

type Config struct {
	Store Store
	Call  llm.CallFunc

	RawBuffer   int
	ChunkWords  int
	TokenBudget int
	MaxDepth    int
	Parallelism int

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Result describes one SummarizeConversation run.
type Result struct {
	ConversationID string
	// Summarized is how many messages were folded in. Zero means the run
	// was a no-op.
	Summarized int
	Bookmark   int64
	Summary    string
}

type Summarizer struct {
	c      Config
	logger *zap.Logger
}

func New(c Config) (*Summarizer, error) {
	if c.Store == nil || c.Call == nil {
		return nil, errors.New("summarizer requires a store and a model")
	}
	if c.RawBuffer <= 0 {
		c.RawBuffer = DefaultRawBuffer
	}
	if c.ChunkWords <= 0 {
		c.ChunkWords = DefaultChunkWords
	}
	if c.TokenBudget <= 0 {
		c.TokenBudget = DefaultTokenBudget
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.Parallelism <= 0 {
		c.Parallelism = DefaultParallelism
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{c: c, logger: logger}, nil
}

// SummarizeConversation advances the conversation's summary past every
// message except the newest RawBuffer. Re-running it with nothing new is a
// no-op. On any error nothing is written.
func (s *Summarizer) SummarizeConversation(ctx context.Context, conversationID string) (Result, error) {
	res := Result{ConversationID: conversationID}
	if conversationID == "" {
		return res, ErrNoConversation
	}
	log := s.logger.With(zap.String("conversation_id", conversationID))

	msgs, err := s.c.Store.ListMessages(ctx, conversationID)
	if err != nil {
		s.c.Metrics.IncSummarizerRun("error")
		return res, fmt.Errorf("listing messages: %w", err)
	}
	if len(msgs) <= s.c.RawBuffer {
		s.c.Metrics.IncSummarizerRun("noop")
		return res, nil
	}

	current, err := s.c.Store.GetSummary(ctx, conversationID)
	if err != nil {
		s.c.Metrics.IncSummarizerRun("error")
		return res, fmt.Errorf("getting summary: %w", err)
	}
	res.Bookmark = current.LastSummarizedMessageID

	var batch []*storage.Message
	for _, m := range msgs[:len(msgs)-s.c.RawBuffer] {
		if m.ID > current.LastSummarizedMessageID {
			batch = append(batch, m)
		}
	}
	if len(batch) == 0 {
		s.c.Metrics.IncSummarizerRun("noop")
		return res, nil
	}

	var prior string
	if current.Text != nil {
		prior = *current.Text
	}

	text, err := s.SummarizeMessages(ctx, prior, batch)
	if err != nil {
		s.c.Metrics.IncSummarizerRun("error")
		return res, err
	}

	newBookmark := batch[len(batch)-1].ID
	err = s.c.Store.AdvanceSummary(ctx, conversationID, current.LastSummarizedMessageID, text, newBookmark)
	if err != nil {
		if errors.Is(err, storage.ErrBookmarkConflict) {
			s.c.Metrics.IncSummarizerRun("conflict")
			log.Info("summary advanced concurrently, discarding run")
		} else {
			s.c.Metrics.IncSummarizerRun("error")
		}
		return res, fmt.Errorf("persisting summary: %w", err)
	}

	s.c.Metrics.IncSummarizerRun("ok")
	log.Info("advanced conversation summary",
		zap.Int("messages", len(batch)),
		zap.Int64("bookmark", newBookmark),
	)

	res.Summarized = len(batch)
	res.Bookmark = newBookmark
	res.Summary = text
	return res, nil
}

// SummarizeMessages summarizes msgs on top of prior without persisting
// anything.
func (s *Summarizer) SummarizeMessages(ctx context.Context, prior string, msgs []*storage.Message) (string, error) {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = FormatMessage(m)
	}
	return s.reduce(ctx, prior, lines, 0)
}

// reduce summarizes lines, splitting them into chunks when they exceed the
// chunk budget, and condenses the result again while it is over the token
// budget.
func (s *Summarizer) reduce(ctx context.Context, prior string, lines []string, depth int) (string, error) {
	var (
		text string
		err  error
	)

	chunks := Chunk(lines, s.c.ChunkWords)
	if len(chunks) <= 1 {
		text, err = s.call(ctx, buildPrompt(conversationPrompt, prior, strings.Join(lines, "\n")))
	} else {
		text, err = s.mapReduce(ctx, prior, chunks)
	}
	if err != nil {
		return "", err
	}

	if EstimateTokens(text) <= s.c.TokenBudget {
		return text, nil
	}
	if depth+1 >= s.c.MaxDepth {
		s.logger.Warn("summary still over token budget at max depth",
			zap.Int("tokens", EstimateTokens(text)),
			zap.Int("budget", s.c.TokenBudget),
		)
		return text, nil
	}
	return s.reduce(ctx, "", strings.Split(text, "\n"), depth+1)
}

func (s *Summarizer) mapReduce(ctx context.Context, prior string, chunks [][]string) (string, error) {
	parts := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.c.Parallelism)
	for i, chunk := range chunks {
		g.Go(func() error {
			out, err := s.call(gctx, buildPrompt(chunkPrompt, "", strings.Join(chunk, "\n")))
			if err != nil {
				return fmt.Errorf("summarizing chunk %d/%d: %w", i+1, len(chunks), err)
			}
			parts[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return s.call(ctx, buildPrompt(synthesisPrompt, prior, parts...))
}

func (s *Summarizer) call(ctx context.Context, prompt string) (string, error) {
	out, err := s.c.Call(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("calling model: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", llm.ErrEmptyReply
	}
	return out, nil
}

// Sweep enqueues a summarization task for every conversation with more than
// RawBuffer messages past its bookmark. It returns how many were queued.
func (s *Summarizer) Sweep(ctx context.Context, q queue.Queue) (int, error) {
	pending, err := s.c.Store.PendingSummaries(ctx, s.c.RawBuffer)
	if err != nil {
		return 0, fmt.Errorf("listing pending summaries: %w", err)
	}

	queued := 0
	for _, id := range pending {
		if err := q.Enqueue(ctx, queue.TaskSummarizeConversation, map[string]any{KwargConversationID: id}); err != nil {
			return queued, fmt.Errorf("enqueueing summary of %s: %w", id, err)
		}
		queued++
	}
	return queued, nil
}

// FormatMessage renders m as a transcript line.
func FormatMessage(m *storage.Message) string {
	line := m.Role + ": " + m.Content
	if len(m.Attachments) == 0 {
		return line
	}
	titles := make([]string, len(m.Attachments))
	for i, a := range m.Attachments {
		titles[i] = a.Title
	}
	return line + " [attachments: " + strings.Join(titles, ", ") + "]"
}

// EstimateTokens approximates a token count as four tokens per three words.
func EstimateTokens(text string) int {
	return utils.WordCount(text) * 4 / 3
}

// Chunk groups lines into chunks of at most maxWords words. Lines longer
// than maxWords are split on word boundaries. Order is preserved.
func Chunk(lines []string, maxWords int) [][]string {
	var (
		chunks  [][]string
		current []string
		words   int
	)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, current)
			current, words = nil, 0
		}
	}

	for _, line := range lines {
		n := utils.WordCount(line)
		if n == 0 {
			continue
		}
		if n > maxWords {
			flush()
			fields := strings.Fields(line)
			for start := 0; start < len(fields); start += maxWords {
				end := min(start+maxWords, len(fields))
				chunks = append(chunks, []string{strings.Join(fields[start:end], " ")})
			}
			continue
		}
		if words+n > maxWords {
			flush()
		}
		current = append(current, line)
		words += n
	}
	flush()
	return chunks
}
