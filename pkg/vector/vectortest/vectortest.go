// Package vectortest holds behavioral specs shared by every vector.VectorDriver
// implementation.
package vectortest

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/vector"
)

// Dimensions is the embedding width the shared specs use.
const Dimensions = 4

// DriverSpecs registers the shared specs. newDriver must return a fresh,
// empty driver configured for Dimensions.
func DriverSpecs(newDriver func() vector.VectorDriver) {
	var (
		ctx    context.Context
		driver vector.VectorDriver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
		DeferCleanup(func() {
			Expect(driver.Close()).To(Succeed())
		})
	})

	seed := func() {
		Expect(driver.Add(ctx, []vector.Document{
			{ID: "doc-1", UserID: "u1", Content: "one", Embedding: []float32{1, 0, 0, 0}},
			{ID: "doc-2", UserID: "u1", Content: "two", Embedding: []float32{0.9, 0.1, 0, 0}},
			{ID: "doc-3", UserID: "u1", Content: "three", Embedding: []float32{0, 1, 0, 0}},
			{ID: "doc-4", UserID: "u2", Content: "other learner", Embedding: []float32{1, 0, 0, 0}},
		})).To(Succeed())
	}

	Describe("Add", func() {
		It("does nothing when given empty docs", func() {
			Expect(driver.Add(ctx, nil)).To(Succeed())
		})

		It("stores content and metadata", func() {
			Expect(driver.Add(ctx, []vector.Document{{
				ID:        "doc-1",
				UserID:    "u1",
				Content:   "struggles with particles",
				Metadata:  map[string]string{"category": "learning_struggle"},
				Embedding: []float32{0.1, 0.2, 0.3, 0.4},
			}})).To(Succeed())

			docs, err := driver.Get(ctx, []string{"doc-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].UserID).To(Equal("u1"))
			Expect(docs[0].Content).To(Equal("struggles with particles"))
			Expect(docs[0].Metadata).To(HaveKeyWithValue("category", "learning_struggle"))
			Expect(docs[0].Embedding).To(HaveLen(Dimensions))
			Expect(docs[0].Embedding[1]).To(BeNumerically("~", 0.2, 0.001))
		})

		It("updates an existing document", func() {
			Expect(driver.Add(ctx, []vector.Document{
				{ID: "doc-1", UserID: "u1", Content: "before", Embedding: []float32{1, 0, 0, 0}},
			})).To(Succeed())
			Expect(driver.Add(ctx, []vector.Document{
				{ID: "doc-1", UserID: "u1", Content: "after", Embedding: []float32{0, 1, 0, 0}},
			})).To(Succeed())

			docs, err := driver.Get(ctx, []string{"doc-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].Content).To(Equal("after"))
		})
	})

	Describe("Query", func() {
		BeforeEach(seed)

		It("returns the closest documents first", func() {
			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 3, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
			Expect(results[0].ID).To(Equal("doc-1"))
			Expect(results[0].Content).To(Equal("one"))
			Expect(results[1].ID).To(Equal("doc-2"))

			for i := 1; i < len(results); i++ {
				Expect(results[i-1].Score).To(BeNumerically(">=", results[i].Score))
			}
		})

		It("never returns another user's documents", func() {
			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 10, "u2")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("doc-4"))
		})

		It("respects topK", func() {
			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 1, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
		})

		It("defaults topK when zero", func() {
			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 0, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
		})

		It("returns nothing for an unknown user", func() {
			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 5, "nobody")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})
	})

	Describe("Get", func() {
		BeforeEach(seed)

		It("returns nil for empty IDs", func() {
			docs, err := driver.Get(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(BeEmpty())
		})

		It("skips unknown IDs", func() {
			docs, err := driver.Get(ctx, []string{"doc-1", "nonexistent"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].ID).To(Equal("doc-1"))
		})
	})

	Describe("Delete", func() {
		BeforeEach(seed)

		It("removes documents from lookups and queries", func() {
			Expect(driver.Delete(ctx, []string{"doc-1", "nonexistent"})).To(Succeed())

			docs, err := driver.Get(ctx, []string{"doc-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(BeEmpty())

			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 10, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			for _, r := range results {
				Expect(r.ID).NotTo(Equal("doc-1"))
			}
		})
	})
}
