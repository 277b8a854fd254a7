package episodic_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/memory"
	"github.com/papercomputeco/sensei/pkg/memory/episodic"
	testutils "github.com/papercomputeco/sensei/pkg/utils/test"
	"github.com/papercomputeco/sensei/pkg/vector/inmemory"
)

var _ = Describe("Store", func() {
	var (
		ctx      context.Context
		embedder *testutils.MockEmbedder
		vectors  *inmemory.Driver
		store    *episodic.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = testutils.NewMockEmbedder()
		embedder.Embeddings["struggles with particles wa and ga"] = []float32{1, 0, 0, 0}
		embedder.Embeddings["goal: pass JLPT N4"] = []float32{0, 1, 0, 0}
		embedder.Embeddings["particles"] = []float32{0.9, 0.1, 0, 0}
		vectors = inmemory.NewDriver()

		var err error
		store, err = episodic.NewStore(episodic.Config{Embedder: embedder, Vectors: vectors})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires an embedder and a vector driver", func() {
		_, err := episodic.NewStore(episodic.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("retrieves the most relevant snippet first with a score and timestamp", func() {
		Expect(store.Insert(ctx, "struggles with particles wa and ga", "u1", nil)).To(Succeed())
		Expect(store.Insert(ctx, "goal: pass JLPT N4", "u1", nil)).To(Succeed())

		snippets, err := store.Retrieve(ctx, "particles", "u1", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(snippets).To(HaveLen(2))
		Expect(snippets[0].Summary).To(Equal("struggles with particles wa and ga"))
		Expect(snippets[0].Relevance).To(BeNumerically(">", snippets[1].Relevance))
		Expect(snippets[0].Timestamp).NotTo(BeNil())
	})

	It("scopes retrieval to the user", func() {
		Expect(store.Insert(ctx, "struggles with particles wa and ga", "u1", nil)).To(Succeed())

		snippets, err := store.Retrieve(ctx, "particles", "u2", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(snippets).To(BeEmpty())
	})

	It("overwrites rather than duplicates when an idempotency key repeats", func() {
		meta := map[string]string{memory.MetaIdempotencyKey: "s1:1-10"}
		Expect(store.Insert(ctx, "struggles with particles wa and ga", "u1", meta)).To(Succeed())
		Expect(store.Insert(ctx, "struggles with particles wa and ga", "u1", meta)).To(Succeed())

		snippets, err := store.Retrieve(ctx, "particles", "u1", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(snippets).To(HaveLen(1))
	})

	It("returns nothing for a blank query without embedding", func() {
		snippets, err := store.Retrieve(ctx, "   ", "u1", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(snippets).To(BeNil())
		Expect(embedder.Calls).To(BeEmpty())
	})

	It("rejects empty memories", func() {
		Expect(store.Insert(ctx, "", "u1", nil)).NotTo(Succeed())
	})

	It("wraps embedder and vector failures", func() {
		embedder.FailOn = "particles"
		_, err := store.Retrieve(ctx, "particles", "u1", 5)
		Expect(err).To(MatchError(ContainSubstring("embedding query")))

		failing := testutils.NewMockVectorDriver()
		failing.Err = errors.New("down")
		s, err := episodic.NewStore(episodic.Config{Embedder: embedder, Vectors: failing})
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Insert(ctx, "goal: pass JLPT N4", "u1", nil)).To(MatchError(ContainSubstring("down")))
	})

	It("does not mutate the caller's metadata", func() {
		meta := map[string]string{memory.MetaCategory: "goal"}
		Expect(store.Insert(ctx, "goal: pass JLPT N4", "u1", meta)).To(Succeed())
		Expect(meta).To(HaveLen(1))

		docs, err := vectors.Query(ctx, []float32{0, 1, 0, 0}, 1, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(1))
		Expect(docs[0].Metadata).To(HaveKey(memory.MetaCreatedAt))
		Expect(docs[0].Metadata).To(HaveKeyWithValue(memory.MetaCategory, "goal"))
	})
})
