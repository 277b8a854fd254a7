package sqlite_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/storage"
	"github.com/papercomputeco/sensei/pkg/storage/sqlite"
	"github.com/papercomputeco/sensei/pkg/storage/storagetest"
)

var _ = Describe("SQLiteDriver", func() {
	storagetest.DriverSpecs(func() storage.Driver {
		d, err := sqlite.NewSQLiteDriver(":memory:")
		Expect(err).NotTo(HaveOccurred())
		return d
	})

	Describe("NewSQLiteDriver", func() {
		It("creates a file database and reopens it with data intact", func() {
			dbPath := filepath.Join(GinkgoT().TempDir(), "sensei.db")

			d, err := sqlite.NewSQLiteDriver(dbPath)
			Expect(err).NotTo(HaveOccurred())
			_, err = os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())

			ctx := context.Background()
			Expect(d.AdvanceSummary(ctx, "c", 0, "kept", 3)).To(Succeed())
			Expect(d.Close()).To(Succeed())

			d, err = sqlite.NewSQLiteDriver(dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer d.Close()

			s, err := d.GetSummary(ctx, "c")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Text).To(HaveValue(Equal("kept")))
		})
	})
})
