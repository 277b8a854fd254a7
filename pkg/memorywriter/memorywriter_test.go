package memorywriter_test

import (
	"context"
	"errors"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/episode"
	"github.com/papercomputeco/sensei/pkg/gatekeeper"
	"github.com/papercomputeco/sensei/pkg/memory"
	"github.com/papercomputeco/sensei/pkg/memory/episodic"
	"github.com/papercomputeco/sensei/pkg/memory/graph"
	graphmem "github.com/papercomputeco/sensei/pkg/memory/graph/inmemory"
	"github.com/papercomputeco/sensei/pkg/memorywriter"
	"github.com/papercomputeco/sensei/pkg/policy"
	"github.com/papercomputeco/sensei/pkg/queue"
	"github.com/papercomputeco/sensei/pkg/storage"
	storagemem "github.com/papercomputeco/sensei/pkg/storage/inmemory"
	studymem "github.com/papercomputeco/sensei/pkg/study/inmemory"
	"github.com/papercomputeco/sensei/pkg/summarizer"
	testutils "github.com/papercomputeco/sensei/pkg/utils/test"
	vectormem "github.com/papercomputeco/sensei/pkg/vector/inmemory"
)

type fixedClassifier struct {
	c     gatekeeper.Classification
	calls atomic.Int32
}

func (f *fixedClassifier) EvaluateInteraction(context.Context, string, string) gatekeeper.Classification {
	f.calls.Add(1)
	return f.c
}

var _ = Describe("Writer", func() {
	var (
		ctx        context.Context
		classifier *fixedClassifier
		vectors    *vectormem.Driver
		semantic   *graph.Store
		studies    *studymem.Store
		extractor  *testutils.ScriptedLLM
		cfg        memorywriter.Config
		in         memorywriter.Interaction
	)

	newWriter := func() *memorywriter.Writer {
		w, err := memorywriter.New(cfg)
		Expect(err).NotTo(HaveOccurred())
		return w
	}

	storedIDs := func() []string {
		docs, err := vectors.Get(ctx, []string{"learner-1:s1:1-2", "learner-1:s1:3-4"})
		Expect(err).NotTo(HaveOccurred())
		ids := make([]string, len(docs))
		for i, d := range docs {
			ids[i] = d.ID
		}
		return ids
	}

	BeforeEach(func() {
		ctx = context.Background()
		classifier = &fixedClassifier{}
		vectors = vectormem.NewDriver()
		embedder := testutils.NewMockEmbedder()
		embedder.Embeddings["learner"] = []float32{1, 0, 0, 0}
		embedder.Embeddings["romaji"] = []float32{0, 1, 0, 0}

		store, err := episodic.NewStore(episodic.Config{Embedder: embedder, Vectors: vectors})
		Expect(err).NotTo(HaveOccurred())

		semantic, err = graph.NewStore(graph.Config{Backend: graphmem.NewBackend(), Embedder: embedder})
		Expect(err).NotTo(HaveOccurred())

		policyCfg, err := policy.DefaultConfig()
		Expect(err).NotTo(HaveOccurred())
		engine, err := policy.NewEngine(policyCfg, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		studies = studymem.NewStore()
		extractor = testutils.NewScriptedLLM()

		cfg = memorywriter.Config{
			Classifier: classifier,
			Episodic:   store,
			Rules:      engine,
			Semantic:   semantic,
			Extract:    extractor.Call,
			Study:      studies,
		}
		in = memorywriter.Interaction{
			SessionID:      "s1",
			UserID:         "learner-1",
			StartMessageID: 1,
			EndMessageID:   2,
			UserMessage:    "I finally understand the te-form",
			AgentMessage:   "Great, let's practice it with verbs of motion.",
		}
	})

	It("requires a classifier and an episodic store", func() {
		_, err := memorywriter.New(memorywriter.Config{Classifier: classifier})
		Expect(err).To(HaveOccurred())
	})

	It("keys interactions by session and message span", func() {
		Expect(memorywriter.IdempotencyKey("s1", 3, 8)).To(Equal("s1:3-8"))
	})

	It("never persists session-scoped interactions", func() {
		classifier.c = gatekeeper.Classification{IsMemorable: true, Scope: gatekeeper.ScopeSession, Category: "progress", Priority: 3}

		out, err := newWriter().WriteInteraction(ctx, in)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Destination).To(Equal(gatekeeper.DestinationDiscard))
		Expect(storedIDs()).To(BeEmpty())
	})

	It("writes permanent interactions to episodic memory once per span", func() {
		classifier.c = gatekeeper.Classification{IsMemorable: true, Scope: gatekeeper.ScopePermanent, Category: "progress", Priority: 3}
		w := newWriter()

		out, err := w.WriteInteraction(ctx, in)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Destination).To(Equal(gatekeeper.DestinationEpisodic))

		_, err = w.WriteInteraction(ctx, in)
		Expect(err).NotTo(HaveOccurred())

		docs, err := vectors.Get(ctx, []string{"learner-1:s1:1-2"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(1))
		Expect(docs[0].Content).To(ContainSubstring("Learner: I finally understand the te-form"))
		Expect(docs[0].Metadata).To(HaveKeyWithValue(memory.MetaCategory, "progress"))
		Expect(docs[0].Metadata).To(HaveKeyWithValue(memory.MetaIdempotencyKey, "s1:1-2"))
	})

	It("writes fact-like interactions to the graph", func() {
		classifier.c = gatekeeper.Classification{IsMemorable: true, Scope: gatekeeper.ScopePermanent, Category: "preference", Priority: 4}
		extractor.Default = "```json\n[{\"source\": \"learner\", \"relation\": \"prefers\", \"target\": \"romaji\"}, {\"source\": \"\", \"relation\": \"x\", \"target\": \"y\"}]\n```"
		in.UserMessage = "I prefer romaji over kana for now"

		out, err := newWriter().WriteInteraction(ctx, in)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Destination).To(Equal(gatekeeper.DestinationSemantic))
		Expect(out.Triples).To(Equal(1))

		triples, err := semantic.Retrieve(ctx, "learner-1", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(triples).To(HaveLen(1))
		Expect(triples[0].Relation).To(Equal("PREFERS"))
		Expect(triples[0].Target).To(Equal("romaji"))
		Expect(storedIDs()).To(BeEmpty())
	})

	It("falls back to episodic memory when no triple can be extracted", func() {
		classifier.c = gatekeeper.Classification{IsMemorable: true, Scope: gatekeeper.ScopePermanent, Category: "fact", Priority: 3}
		extractor.Default = "[]"

		out, err := newWriter().WriteInteraction(ctx, in)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Destination).To(Equal(gatekeeper.DestinationEpisodic))
		Expect(storedIDs()).To(ConsistOf("learner-1:s1:1-2"))
	})

	It("falls back to episodic memory without a semantic store", func() {
		classifier.c = gatekeeper.Classification{IsMemorable: true, Scope: gatekeeper.ScopePermanent, Category: "goal", Priority: 3}
		cfg.Semantic = nil

		out, err := newWriter().WriteInteraction(ctx, in)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Destination).To(Equal(gatekeeper.DestinationEpisodic))
		Expect(extractor.CallCount()).To(BeZero())
	})

	It("returns extraction transport errors for redelivery", func() {
		classifier.c = gatekeeper.Classification{IsMemorable: true, Scope: gatekeeper.ScopePermanent, Category: "goal", Priority: 3}
		extractor.Err = errors.New("model down")

		_, err := newWriter().WriteInteraction(ctx, in)
		Expect(err).To(MatchError(ContainSubstring("model down")))
	})

	Describe("memory save rules", func() {
		BeforeEach(func() {
			in.UserMessage = "I keep struggling with particles"
		})

		It("raises the priority to the rule's floor and records the struggle", func() {
			classifier.c = gatekeeper.Classification{IsMemorable: true, Scope: gatekeeper.ScopePermanent, Category: "grammar", Priority: 2}

			out, err := newWriter().WriteInteraction(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Rule).NotTo(BeNil())
			Expect(out.Rule.Type).To(Equal(memorywriter.StruggleRule))
			Expect(out.Classification.Priority).To(Equal(5))

			trends, err := studies.PerformanceTrends(ctx, "learner-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(trends.IdentifiedStruggles).To(ConsistOf("grammar"))
		})

		It("stands in for a classifier that failed", func() {
			classifier.c = gatekeeper.Forget(gatekeeper.ReasonModelError)

			out, err := newWriter().WriteInteraction(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Destination).To(Equal(gatekeeper.DestinationEpisodic))
			Expect(out.Classification.Category).To(Equal(memorywriter.StruggleRule))
			Expect(storedIDs()).To(ConsistOf("learner-1:s1:1-2"))

			trends, err := studies.PerformanceTrends(ctx, "learner-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(trends.IdentifiedStruggles).To(ConsistOf("i keep struggling with particles"))
		})

		It("does not override a deliberate forget", func() {
			classifier.c = gatekeeper.Forget("just venting")

			out, err := newWriter().WriteInteraction(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Destination).To(Equal(gatekeeper.DestinationDiscard))
			Expect(storedIDs()).To(BeEmpty())
		})
	})

	Describe("HandleExtractInteraction", func() {
		It("decodes kwargs that crossed a JSON transport", func() {
			classifier.c = gatekeeper.Classification{IsMemorable: true, Scope: gatekeeper.ScopePermanent, Category: "progress", Priority: 3}
			kwargs := memorywriter.InteractionKwargs(in)
			kwargs[memorywriter.KwargStartID] = float64(1)
			kwargs[memorywriter.KwargEndID] = float64(2)

			task, err := queue.NewTask(queue.TaskExtractInteraction, kwargs)
			Expect(err).NotTo(HaveOccurred())
			Expect(newWriter().HandleExtractInteraction(ctx, task)).To(Succeed())
			Expect(storedIDs()).To(ConsistOf("learner-1:s1:1-2"))
		})

		It("rejects tasks without a user", func() {
			task, err := queue.NewTask(queue.TaskExtractInteraction, map[string]any{memorywriter.KwargSessionID: "s1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(newWriter().HandleExtractInteraction(ctx, task)).To(MatchError(memorywriter.ErrMissingKwarg))
			Expect(classifier.calls.Load()).To(BeZero())
		})
	})

	Describe("FinalizeEpisode", func() {
		var (
			db      *storagemem.Driver
			model   *testutils.ScriptedLLM
			manager *episode.Manager
			closed  *storage.Episode
		)

		BeforeEach(func() {
			db = storagemem.NewDriver()
			model = testutils.NewScriptedLLM()
			model.Default = "Reviewed the te-form."

			var err error
			manager, err = episode.New(episode.Config{Store: db, CloseThreshold: 2})
			Expect(err).NotTo(HaveOccurred())
			sum, err := summarizer.New(summarizer.Config{Store: db, Call: model.Call})
			Expect(err).NotTo(HaveOccurred())

			cfg.Episodes = manager
			cfg.Messages = db
			cfg.Summarizer = sum

			for _, content := range []string{"How do I form the te-form?", "Drop the masu and..."} {
				m, err := db.AppendMessage(ctx, &storage.Message{ConversationID: "s1", Role: "user", Content: content})
				Expect(err).NotTo(HaveOccurred())
				closed, err = manager.AddMessageToEpisode(ctx, "s1", m.ID)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(closed.Status).To(Equal(storage.EpisodeClosed))
		})

		It("stores the summary on the episode and in episodic memory", func() {
			w := newWriter()
			Expect(w.FinalizeEpisode(ctx, closed.ID, "learner-1")).To(Succeed())

			ep, err := db.GetEpisode(ctx, closed.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ep.Status).To(Equal(storage.EpisodeClosed))
			Expect(*ep.Summary).To(Equal("Reviewed the te-form."))
			Expect(model.PromptsSnapshot()[0]).To(ContainSubstring("user: How do I form the te-form?"))

			docs, err := vectors.Get(ctx, []string{"learner-1:episode:" + closed.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].Metadata).To(HaveKeyWithValue(memory.MetaEpisodeID, closed.ID))

			Expect(w.FinalizeEpisode(ctx, closed.ID, "learner-1")).To(Succeed())
			Expect(model.CallCount()).To(Equal(1))
		})

		It("marks the episode failed and recovers on redelivery", func() {
			model.Err = errors.New("model down")
			w := newWriter()

			Expect(w.FinalizeEpisode(ctx, closed.ID, "learner-1")).To(MatchError(ContainSubstring("model down")))
			ep, err := db.GetEpisode(ctx, closed.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ep.Status).To(Equal(storage.EpisodeFailed))

			model.Err = nil
			task, err := queue.NewTask(queue.TaskFinalizeEpisode, map[string]any{
				episode.KwargEpisodeID: closed.ID,
				episode.KwargUserID:    "learner-1",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(w.HandleFinalizeEpisode(ctx, task)).To(Succeed())

			ep, err = db.GetEpisode(ctx, closed.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ep.Status).To(Equal(storage.EpisodeClosed))
			Expect(ep.Summary).NotTo(BeNil())
		})
	})
})
