package sqlitevec_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/vector"
	"github.com/papercomputeco/sensei/pkg/vector/sqlitevec"
	"github.com/papercomputeco/sensei/pkg/vector/vectortest"
)

var _ = Describe("SQLiteVecDriver", func() {
	var logger *zap.Logger

	BeforeEach(func() {
		logger = zap.NewNop()
	})

	Describe("NewSQLiteVecDriver", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{DBPath: ""}, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("should error when dimension not specified", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath: ":memory:",
			}, logger)
			Expect(err).To(HaveOccurred())
		})
	})

	vectortest.DriverSpecs(func() vector.VectorDriver {
		driver, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     ":memory:",
			Dimensions: vectortest.Dimensions,
		}, logger)
		Expect(err).NotTo(HaveOccurred())
		return driver
	})

	It("rejects embeddings of the wrong width", func() {
		driver, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     ":memory:",
			Dimensions: 4,
		}, logger)
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		err = driver.Add(context.Background(), []vector.Document{
			{ID: "doc-1", UserID: "u1", Embedding: []float32{0.1, 0.2}},
		})
		Expect(err).To(MatchError(vector.ErrDimensionMismatch))
	})
})
