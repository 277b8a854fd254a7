package runtime_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/aperture"
	"github.com/papercomputeco/sensei/pkg/artifact"
	"github.com/papercomputeco/sensei/pkg/episode"
	"github.com/papercomputeco/sensei/pkg/governor"
	"github.com/papercomputeco/sensei/pkg/memory"
	"github.com/papercomputeco/sensei/pkg/memorywriter"
	"github.com/papercomputeco/sensei/pkg/policy"
	"github.com/papercomputeco/sensei/pkg/queue"
	"github.com/papercomputeco/sensei/pkg/runtime"
	"github.com/papercomputeco/sensei/pkg/storage"
	"github.com/papercomputeco/sensei/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/sensei/pkg/utils/test"
)

var _ = Describe("Runtime", func() {
	var (
		ctx      context.Context
		db       *inmemory.Driver
		q        *testutils.RecordingQueue
		episodic *testutils.StubEpisodic
		engine   *policy.Engine
		gov      *governor.Governor
		rt       *runtime.Runtime
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = inmemory.NewDriver()
		q = testutils.NewRecordingQueue()
		episodic = &testutils.StubEpisodic{Snippets: []memory.Snippet{{Summary: "Studies for the JLPT N4"}}}

		policyCfg, err := policy.DefaultConfig()
		Expect(err).NotTo(HaveOccurred())
		engine, err = policy.NewEngine(policyCfg, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		episodes, err := episode.New(episode.Config{Store: db, Queue: q, CloseThreshold: 4})
		Expect(err).NotTo(HaveOccurred())

		gov, err = governor.New(governor.Config{Artifacts: db})
		Expect(err).NotTo(HaveOccurred())

		rt, err = runtime.New(runtime.Config{
			Policy:    engine,
			Assembler: aperture.New(aperture.Config{Episodic: episodic, Artifacts: db}),
			Messages:  db,
			Episodes:  episodes,
			Governor:  gov,
			Queue:     q,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires its core collaborators", func() {
		_, err := runtime.New(runtime.Config{})
		Expect(err).To(HaveOccurred())
	})

	Describe("BeginTurn", func() {
		It("assembles the learner context", func() {
			turn, err := rt.BeginTurn(ctx, runtime.TurnRequest{UserID: "learner-1", SessionID: "s1", Query: "what next?"})
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Decision.Allowed).To(BeTrue())
			Expect(turn.Context.Memories).To(HaveLen(1))
			Expect(turn.Narrative).To(ContainSubstring("Studies for the JLPT N4"))
		})

		It("refuses restricted intents before assembling", func() {
			turn, err := rt.BeginTurn(ctx, runtime.TurnRequest{
				UserID: "learner-1", IdentityType: "user", IntentID: "admin_reset_progress",
			})
			Expect(err).To(MatchError(runtime.ErrIntentDenied))
			Expect(turn.Decision.Allowed).To(BeFalse())
			Expect(turn.Decision.Reason).NotTo(BeEmpty())
			Expect(episodic.Calls.Load()).To(BeZero())
		})

		It("lets admins run restricted intents", func() {
			turn, err := rt.BeginTurn(ctx, runtime.TurnRequest{
				UserID: "ops", IdentityType: policy.AdminIdentity, IntentID: "admin_reset_progress",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Decision.Allowed).To(BeTrue())
		})
	})

	Describe("RecordMessage", func() {
		It("queues an answered exchange for memory extraction and summarization", func() {
			u, err := rt.RecordMessage(ctx, "s1", "learner-1", runtime.RoleUser, "I keep mixing up wa and ga", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(q.Tasks()).To(BeEmpty())

			a, err := rt.RecordMessage(ctx, "s1", "learner-1", runtime.RoleAssistant, "Let's compare them.", nil)
			Expect(err).NotTo(HaveOccurred())

			extract := q.Named(queue.TaskExtractInteraction)
			Expect(extract).To(HaveLen(1))
			Expect(extract[0].Kwargs).To(HaveKeyWithValue(memorywriter.KwargStartID, u.ID))
			Expect(extract[0].Kwargs).To(HaveKeyWithValue(memorywriter.KwargEndID, a.ID))
			Expect(extract[0].Kwargs).To(HaveKeyWithValue(memorywriter.KwargUserMessage, "I keep mixing up wa and ga"))
			Expect(q.Named(queue.TaskSummarizeConversation)).To(HaveLen(1))

			ep, err := db.GetOpenEpisode(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ep.StartMessageID).To(Equal(u.ID))
			Expect(ep.EndMessageID).To(Equal(a.ID))
		})

		It("does not extract an assistant message without a prompt", func() {
			_, err := rt.RecordMessage(ctx, "s1", "learner-1", runtime.RoleAssistant, "Welcome back!", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(q.Named(queue.TaskExtractInteraction)).To(BeEmpty())
		})

		It("closes episodes at the threshold", func() {
			for _, role := range []string{runtime.RoleUser, runtime.RoleAssistant, runtime.RoleUser, runtime.RoleAssistant} {
				_, err := rt.RecordMessage(ctx, "s1", "learner-1", role, "text", nil)
				Expect(err).NotTo(HaveOccurred())
			}
			finalize := q.Named(queue.TaskFinalizeEpisode)
			Expect(finalize).To(HaveLen(1))
			Expect(finalize[0].Kwargs).To(HaveKeyWithValue(episode.KwargUserID, "learner-1"))
		})

		It("forgets the oldest unanswered prompt past the limit", func() {
			small, err := runtime.New(runtime.Config{
				Policy:            engine,
				Assembler:         aperture.New(aperture.Config{Artifacts: db}),
				Messages:          db,
				Governor:          gov,
				Queue:             q,
				MaxPendingPrompts: 2,
			})
			Expect(err).NotTo(HaveOccurred())

			for _, session := range []string{"a", "b", "c"} {
				_, err := small.RecordMessage(ctx, session, "learner-1", runtime.RoleUser, "question in "+session, nil)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(small.PendingPrompts()).To(Equal(2))

			_, err = small.RecordMessage(ctx, "a", "learner-1", runtime.RoleAssistant, "late answer", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(q.Named(queue.TaskExtractInteraction)).To(BeEmpty())

			_, err = small.RecordMessage(ctx, "c", "learner-1", runtime.RoleAssistant, "answer", nil)
			Expect(err).NotTo(HaveOccurred())
			extract := q.Named(queue.TaskExtractInteraction)
			Expect(extract).To(HaveLen(1))
			Expect(extract[0].Kwargs).To(HaveKeyWithValue(memorywriter.KwargUserMessage, "question in c"))
			Expect(small.PendingPrompts()).To(Equal(1))
		})

		It("releases the prompt once the exchange is answered", func() {
			_, err := rt.RecordMessage(ctx, "s1", "learner-1", runtime.RoleUser, "hi", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.PendingPrompts()).To(Equal(1))
			_, err = rt.RecordMessage(ctx, "s1", "learner-1", runtime.RoleAssistant, "hello", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.PendingPrompts()).To(BeZero())
		})

		It("keeps the message when the queue is down", func() {
			q.Err = errors.New("queue full")
			_, err := rt.RecordMessage(ctx, "s1", "learner-1", runtime.RoleUser, "hi", nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = rt.RecordMessage(ctx, "s1", "learner-1", runtime.RoleAssistant, "hello", nil)
			Expect(err).NotTo(HaveOccurred())

			msgs, err := db.ListMessages(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(2))
		})
	})

	Describe("FinishTurn", func() {
		It("packages artifacts and records the reply with attachment titles", func() {
			_, err := rt.RecordMessage(ctx, "s1", "learner-1", runtime.RoleUser, "Make me flashcards", nil)
			Expect(err).NotTo(HaveOccurred())

			out, err := rt.FinishTurn(ctx, runtime.FinishRequest{
				UserID:      "learner-1",
				SessionID:   "s1",
				Content:     "Here is a deck.",
				Proposals:   []artifact.Proposal{{Type: "flashcard_deck", Title: "Particles"}},
				Suggestions: []string{"Review tomorrow"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Artifacts).To(HaveLen(1))
			Expect(artifact.ValidID(out.Artifacts[0].ID)).To(BeTrue())

			msgs, err := db.ListMessages(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].Role).To(Equal(runtime.RoleAssistant))
			Expect(msgs[1].Attachments).To(Equal([]storage.Attachment{{Type: "flashcard_deck", Title: "Particles"}}))
			Expect(q.Named(queue.TaskExtractInteraction)).To(HaveLen(1))

			turn, err := rt.BeginTurn(ctx, runtime.TurnRequest{UserID: "learner-1", Query: "next"})
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Context.Artifacts).To(HaveLen(1))
		})
	})
})
