package governor_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/artifact"
	"github.com/papercomputeco/sensei/pkg/governor"
	"github.com/papercomputeco/sensei/pkg/storage/inmemory"
)

// flakyStore fails creation for titles in fail and can hand out short ids.
type flakyStore struct {
	*inmemory.Driver
	fail    map[string]bool
	nilRef  map[string]bool
	shortID bool
}

func (f *flakyStore) CreateArtifact(ctx context.Context, userID string, p artifact.Proposal) (*artifact.Reference, error) {
	if f.fail[p.Title] {
		return nil, errors.New("insert failed")
	}
	if f.nilRef[p.Title] {
		return nil, nil
	}
	ref, err := f.Driver.CreateArtifact(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	if f.shortID {
		ref.ID = "tmp-1"
	}
	return ref, nil
}

var _ = Describe("Governor", func() {
	var (
		ctx   context.Context
		store *flakyStore
		gov   *governor.Governor
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = &flakyStore{Driver: inmemory.NewDriver(), fail: map[string]bool{}, nilRef: map[string]bool{}}

		var err error
		gov, err = governor.New(governor.Config{Artifacts: store})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires an artifact store", func() {
		_, err := governor.New(governor.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("replaces proposals with stored references", func() {
		out, err := gov.Package(ctx, "learner-1", "Here you go", []artifact.Proposal{
			{Type: "flashcard_deck", Title: "Particles", Data: map[string]any{"cards": 12}},
			{Type: "quiz", Title: "Keigo"},
		}, []string{"Try the quiz next"})
		Expect(err).NotTo(HaveOccurred())

		Expect(out.Message).To(Equal("Here you go"))
		Expect(out.Suggestions).To(ConsistOf("Try the quiz next"))
		Expect(out.Artifacts).To(HaveLen(2))
		for _, a := range out.Artifacts {
			Expect(artifact.ValidID(a.ID)).To(BeTrue())
			stored, err := store.GetArtifact(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Title).To(Equal(a.Title))
		}
		Expect(out.Artifacts[0].Data).To(HaveKeyWithValue("cards", 12))
	})

	It("drops artifacts the store could not create", func() {
		store.fail["Keigo"] = true

		out, err := gov.Package(ctx, "learner-1", "msg", []artifact.Proposal{
			{Type: "flashcard_deck", Title: "Particles"},
			{Type: "quiz", Title: "Keigo"},
		}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Artifacts).To(HaveLen(1))
		Expect(out.Artifacts[0].Title).To(Equal("Particles"))
		Expect(out.Suggestions).NotTo(BeNil())
	})

	It("drops artifacts the store returned no reference for", func() {
		store.nilRef["Keigo"] = true

		var out governor.UnifiedOutput
		var err error
		Expect(func() {
			out, err = gov.Package(ctx, "learner-1", "msg", []artifact.Proposal{
				{Type: "flashcard_deck", Title: "Particles"},
				{Type: "quiz", Title: "Keigo"},
			}, nil)
		}).NotTo(Panic())
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Artifacts).To(HaveLen(1))
		Expect(out.Artifacts[0].Title).To(Equal("Particles"))
	})

	It("returns an empty artifact list without proposals", func() {
		out, err := gov.Package(ctx, "learner-1", "msg", nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Artifacts).NotTo(BeNil())
		Expect(out.Artifacts).To(BeEmpty())
	})

	It("fails loudly when a ghost id would leak", func() {
		store.shortID = true

		out, err := gov.Package(ctx, "learner-1", "msg", []artifact.Proposal{{Type: "note", Title: "Verbs"}}, nil)
		Expect(err).To(MatchError(governor.ErrGhostID))
		Expect(out).To(Equal(governor.UnifiedOutput{}))
	})
})

var _ = Describe("Audit", func() {
	It("accepts store-length ids", func() {
		Expect(governor.Audit(governor.UnifiedOutput{Artifacts: []artifact.Reference{
			{ID: "6f1c2a0e-8d4b-4c1e-9a7f-0b3d5e7f9a11"},
		}})).To(Succeed())
	})

	It("rejects empty and short ids", func() {
		for _, id := range []string{"", "deck-1", "6f1c2a0e-8d4b-4c1e-9a7f-0b3d5e7f9a1"} {
			err := governor.Audit(governor.UnifiedOutput{Artifacts: []artifact.Reference{{ID: id}}})
			Expect(err).To(MatchError(governor.ErrGhostID), id)
		}
	})
})
