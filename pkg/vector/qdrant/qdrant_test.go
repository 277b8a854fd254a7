package qdrant_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/vector"
	"github.com/papercomputeco/sensei/pkg/vector/qdrant"
	"github.com/papercomputeco/sensei/pkg/vector/vectortest"
)

var _ = Describe("QdrantDriver", func() {
	Describe("NewQdrantDriver", func() {
		It("requires a target", func() {
			_, err := qdrant.NewQdrantDriver(context.Background(), qdrant.Config{Dimensions: 4}, zap.NewNop())
			Expect(err).To(MatchError(ContainSubstring("target is required")))
		})

		It("requires dimensions", func() {
			_, err := qdrant.NewQdrantDriver(context.Background(), qdrant.Config{Target: "localhost:6334"}, zap.NewNop())
			Expect(err).To(HaveOccurred())
		})
	})

	Context("against a live qdrant", func() {
		var n int

		BeforeEach(func() {
			if container == nil {
				Skip("set SENSEI_INTEGRATION=1 to run qdrant specs")
			}
			n++
		})

		vectortest.DriverSpecs(func() vector.VectorDriver {
			driver, err := qdrant.NewQdrantDriver(context.Background(), qdrant.Config{
				Target:         container.Addr,
				CollectionName: fmt.Sprintf("spec_%d", n),
				Dimensions:     vectortest.Dimensions,
			}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			return driver
		})
	})
})
