package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/vector"
	"github.com/papercomputeco/sensei/pkg/vector/inmemory"
	"github.com/papercomputeco/sensei/pkg/vector/vectortest"
)

var _ = Describe("Driver", func() {
	vectortest.DriverSpecs(func() vector.VectorDriver {
		return inmemory.NewDriver()
	})

	It("rejects mismatched query dimensions", func() {
		d := inmemory.NewDriver()
		Expect(d.Add(context.Background(), []vector.Document{
			{ID: "a", UserID: "u", Embedding: []float32{1, 0}},
		})).To(Succeed())

		_, err := d.Query(context.Background(), []float32{1, 0, 0}, 1, "u")
		Expect(err).To(MatchError(vector.ErrDimensionMismatch))
	})
})

var _ = Describe("Cosine", func() {
	It("is 1 for identical directions", func() {
		Expect(inmemory.Cosine([]float32{1, 2}, []float32{2, 4})).To(BeNumerically("~", 1, 1e-6))
	})

	It("is 0 for orthogonal or zero vectors", func() {
		Expect(inmemory.Cosine([]float32{1, 0}, []float32{0, 1})).To(BeNumerically("~", 0, 1e-6))
		Expect(inmemory.Cosine([]float32{0, 0}, []float32{0, 1})).To(BeZero())
	})

	It("is 0 for mismatched lengths", func() {
		Expect(inmemory.Cosine([]float32{1}, []float32{1, 0})).To(BeZero())
	})
})
