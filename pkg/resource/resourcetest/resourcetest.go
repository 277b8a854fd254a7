// Package resourcetest holds behavioral specs shared by resource.Driver
// implementations.
package resourcetest

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/resource"
)

// DriverSpecs registers the shared resource.Driver specs.
func DriverSpecs(newDriver func() resource.Driver) {
	var (
		d   resource.Driver
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		d = newDriver()
		DeferCleanup(func() {
			Expect(d.Close()).To(Succeed())
		})

		Expect(d.Index(ctx, "learner-1", []resource.Chunk{
			{Title: "Particles", Content: "The topic particle wa marks what the sentence is about.", SourceID: "grammar"},
			{Title: "Particles", Content: "The subject particle ga marks new information.", SourceID: "grammar"},
			{Title: "Verbs", Content: "Godan verbs change their final kana when conjugated.", SourceID: "grammar"},
			{Title: "Greetings", Content: "Konnichiwa is used during the day.", SourceID: "phrasebook"},
		})).To(Succeed())
		Expect(d.Index(ctx, "learner-2", []resource.Chunk{
			{Title: "Particles", Content: "Someone else's notes about the particle wo.", SourceID: "grammar"},
		})).To(Succeed())
	})

	It("returns nothing when no resources are selected", func() {
		chunks, err := d.Context(ctx, "particle", "learner-1", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(BeEmpty())
	})

	It("ranks chunks that match the query", func() {
		chunks, err := d.Context(ctx, "godan verbs", "learner-1", []string{"grammar"})
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).NotTo(BeEmpty())
		Expect(chunks[0].Title).To(Equal("Verbs"))
		Expect(chunks[0].SourceID).To(Equal("grammar"))
	})

	It("only searches the selected resources", func() {
		chunks, err := d.Context(ctx, "konnichiwa", "learner-1", []string{"grammar"})
		Expect(err).NotTo(HaveOccurred())
		for _, c := range chunks {
			Expect(c.SourceID).To(Equal("grammar"))
		}

		chunks, err = d.Context(ctx, "konnichiwa", "learner-1", []string{"phrasebook"})
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(HaveLen(1))
		Expect(chunks[0].Title).To(Equal("Greetings"))
	})

	It("never returns another learner's chunks", func() {
		chunks, err := d.Context(ctx, "particle", "learner-1", []string{"grammar"})
		Expect(err).NotTo(HaveOccurred())
		for _, c := range chunks {
			Expect(c.Content).NotTo(ContainSubstring("Someone else"))
		}

		chunks, err = d.Context(ctx, "particle", "learner-3", []string{"grammar"})
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(BeEmpty())
	})

	It("falls back to the leading chunks when nothing matches", func() {
		chunks, err := d.Context(ctx, "xylophone", "learner-1", []string{"phrasebook"})
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(HaveLen(1))
		Expect(chunks[0].Title).To(Equal("Greetings"))
	})

	It("replaces a source when it is indexed again", func() {
		Expect(d.Index(ctx, "learner-1", []resource.Chunk{
			{Title: "Greetings", Content: "Ohayou is used in the morning.", SourceID: "phrasebook"},
		})).To(Succeed())

		chunks, err := d.Context(ctx, "", "learner-1", []string{"phrasebook"})
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(HaveLen(1))
		Expect(chunks[0].Content).To(ContainSubstring("Ohayou"))
	})

	It("caps results at the default limit", func() {
		var many []resource.Chunk
		for range resource.DefaultLimit + 3 {
			many = append(many, resource.Chunk{Title: "Drill", Content: "kanji drill practice", SourceID: "drills"})
		}
		Expect(d.Index(ctx, "learner-1", many)).To(Succeed())

		chunks, err := d.Context(ctx, "kanji", "learner-1", []string{"drills"})
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(HaveLen(resource.DefaultLimit))
	})
}
