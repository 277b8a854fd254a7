package worker_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/memorywriter"
	"github.com/papercomputeco/sensei/pkg/queue"
	resourcemem "github.com/papercomputeco/sensei/pkg/resource/inmemory"
	"github.com/papercomputeco/sensei/pkg/storage"
	storagemem "github.com/papercomputeco/sensei/pkg/storage/inmemory"
	"github.com/papercomputeco/sensei/pkg/summarizer"
	testutils "github.com/papercomputeco/sensei/pkg/utils/test"
	"github.com/papercomputeco/sensei/pkg/worker"
)

type consumerQueue struct {
	*testutils.RecordingQueue
	delivered []*queue.Task
}

func (c *consumerQueue) Consume(ctx context.Context, h queue.Handler) error {
	for _, t := range c.delivered {
		if err := h(ctx, t); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

var _ = Describe("worker", func() {
	var (
		ctx       context.Context
		db        *storagemem.Driver
		model     *testutils.ScriptedLLM
		sum       *summarizer.Summarizer
		resources *resourcemem.Driver
		mux       *queue.Mux
	)

	task := func(name string, kwargs map[string]any) *queue.Task {
		t, err := queue.NewTask(name, kwargs)
		Expect(err).NotTo(HaveOccurred())
		return t
	}

	BeforeEach(func() {
		ctx = context.Background()
		db = storagemem.NewDriver()
		model = testutils.NewScriptedLLM()
		model.Default = "summary"
		resources = resourcemem.NewDriver()

		var err error
		sum, err = summarizer.New(summarizer.Config{Store: db, Call: model.Call})
		Expect(err).NotTo(HaveOccurred())

		mux = queue.NewMux()
		worker.Register(mux, worker.Config{Summarizer: sum, Resources: resources})
	})

	It("registers only the configured handlers", func() {
		Expect(mux.Tasks()).To(ConsistOf(queue.TaskSummarizeConversation, queue.TaskIngestResource))
		err := mux.Serve(ctx, task(queue.TaskExtractInteraction, nil))
		Expect(err).To(MatchError(queue.ErrUnknownTask))
	})

	It("indexes ingested resources for the learner", func() {
		Expect(mux.Serve(ctx, task(queue.TaskIngestResource, map[string]any{
			worker.KwargUserID:   "learner-1",
			worker.KwargSourceID: "grammar",
			worker.KwargTitle:    "Grammar notes",
			worker.KwargText:     "# Particles\n\nThe particle wa marks the topic of a sentence.",
		}))).To(Succeed())

		chunks, err := resources.Context(ctx, "particle topic", "learner-1", []string{"grammar"})
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).NotTo(BeEmpty())
		Expect(chunks[0].SourceID).To(Equal("grammar"))
	})

	It("rejects ingestion without a source", func() {
		err := mux.Serve(ctx, task(queue.TaskIngestResource, map[string]any{worker.KwargUserID: "learner-1"}))
		Expect(err).To(MatchError(memorywriter.ErrMissingKwarg))
	})

	It("summarizes conversations", func() {
		for i := range 8 {
			_, err := db.AppendMessage(ctx, &storage.Message{ConversationID: "c1", Role: "user", Content: fmt.Sprintf("m%d", i)})
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(mux.Serve(ctx, task(queue.TaskSummarizeConversation, map[string]any{
			summarizer.KwargConversationID: "c1",
		}))).To(Succeed())

		s, err := db.GetSummary(ctx, "c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.LastSummarizedMessageID).To(Equal(int64(2)))
	})

	It("treats a lost bookmark race as done", func() {
		for i := range 8 {
			_, err := db.AppendMessage(ctx, &storage.Message{ConversationID: "c1", Role: "user", Content: fmt.Sprintf("m%d", i)})
			Expect(err).NotTo(HaveOccurred())
		}
		model.Respond = func(string) (string, error) {
			Expect(db.AdvanceSummary(ctx, "c1", 0, "other", 1)).To(Succeed())
			return "mine", nil
		}
		Expect(mux.Serve(ctx, task(queue.TaskSummarizeConversation, map[string]any{
			summarizer.KwargConversationID: "c1",
		}))).To(Succeed())
	})

	Describe("Run", func() {
		It("waits for in-process queues until cancelled", func() {
			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- worker.Run(runCtx, testutils.NewRecordingQueue(), mux.Serve) }()

			Consistently(done, 50*time.Millisecond).ShouldNot(Receive())
			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})

		It("drives consumer backends", func() {
			q := &consumerQueue{
				RecordingQueue: testutils.NewRecordingQueue(),
				delivered: []*queue.Task{task(queue.TaskIngestResource, map[string]any{
					worker.KwargUserID:   "learner-1",
					worker.KwargSourceID: "vocab",
					worker.KwargText:     "taberu means to eat",
				})},
			}
			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- worker.Run(runCtx, q, mux.Serve) }()

			Eventually(func() int {
				chunks, _ := resources.Context(ctx, "eat", "learner-1", []string{"vocab"})
				return len(chunks)
			}).Should(Equal(1))

			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})
