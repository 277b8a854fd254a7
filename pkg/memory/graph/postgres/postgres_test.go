package postgres_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/memory"
	"github.com/papercomputeco/sensei/pkg/memory/graph"
	"github.com/papercomputeco/sensei/pkg/memory/graph/postgres"
	storagepg "github.com/papercomputeco/sensei/pkg/storage/postgres"
	testutils "github.com/papercomputeco/sensei/pkg/utils/test"
)

var _ = Describe("Backend", func() {
	var (
		ctx     context.Context
		driver  *storagepg.Driver
		backend *postgres.Backend
	)

	BeforeEach(func() {
		if dsn == "" {
			Skip("SENSEI_INTEGRATION not set, skipping PostgreSQL tests")
		}
		ctx = context.Background()

		var err error
		driver, err = storagepg.NewDriver(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(driver.Close)

		_, err = driver.Pool.Exec(ctx, `TRUNCATE graph_relationships, graph_entities RESTART IDENTITY`)
		Expect(err).NotTo(HaveOccurred())
		backend = postgres.NewBackend(driver.Pool)
	})

	It("returns the existing entity on a normalized name collision", func() {
		a, err := backend.CreateEntity(ctx, graph.Entity{UserID: "u1", Name: "Japanese", Normalized: "japanese", Embedding: []float32{0, 1}})
		Expect(err).NotTo(HaveOccurred())
		b, err := backend.CreateEntity(ctx, graph.Entity{UserID: "u1", Name: "japanese", Normalized: "japanese", Embedding: []float32{1, 0}})
		Expect(err).NotTo(HaveOccurred())
		Expect(b.ID).To(Equal(a.ID))
		Expect(b.Name).To(Equal("Japanese"))
		Expect(b.Embedding).To(Equal([]float32{0, 1}))
	})

	It("resolves near-duplicates through the store", func() {
		embedder := testutils.NewMockEmbedder()
		embedder.Embeddings["Software Engineer"] = []float32{0.9, 0.1, 0, 0}
		embedder.Embeddings["Computer Programmer"] = []float32{0.88, 0.14, 0.02, 0}
		embedder.Embeddings["Japanese"] = []float32{0, 1, 0, 0}

		store, err := graph.NewStore(graph.Config{Backend: backend, Embedder: embedder})
		Expect(err).NotTo(HaveOccurred())

		Expect(store.UpsertRelationships(ctx, []memory.Triple{
			{Source: "Software Engineer", Relation: "studies", Target: "Japanese", Properties: map[string]any{"level": "N5"}},
		}, "u1")).To(Succeed())
		Expect(store.UpsertRelationships(ctx, []memory.Triple{
			{Source: "Computer Programmer", Relation: "studies", Target: "Japanese", Properties: map[string]any{"level": "N4"}},
		}, "u1")).To(Succeed())

		facts, err := store.Retrieve(ctx, "u1", "Computer Programmer")
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(HaveLen(1))
		Expect(facts[0].Source).To(Equal("Software Engineer"))
		Expect(facts[0].Properties).To(HaveKeyWithValue("level", "N4"))
	})
})
