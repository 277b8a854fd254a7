// Package storagetest holds the behavioral specs every storage.Driver must
// pass. Driver packages call DriverSpecs from their own suites.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/artifact"
	"github.com/papercomputeco/sensei/pkg/storage"
)

var episodeSeq atomic.Int64

func nextEpisodeID() string {
	return fmt.Sprintf("ep-%06d", episodeSeq.Add(1))
}

// DriverSpecs registers the shared driver behaviors. newDriver is called
// before each spec and the returned driver is closed afterwards.
func DriverSpecs(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
		DeferCleanup(func() { Expect(driver.Close()).To(Succeed()) })
	})

	appendN := func(conv string, n int) []*storage.Message {
		var out []*storage.Message
		for i := 0; i < n; i++ {
			m, err := driver.AppendMessage(ctx, &storage.Message{
				ConversationID: conv,
				Role:           "user",
				Content:        fmt.Sprintf("message %d", i+1),
			})
			Expect(err).NotTo(HaveOccurred())
			out = append(out, m)
		}
		return out
	}

	Describe("messages", func() {
		It("assigns strictly increasing ids", func() {
			msgs := appendN("conv-a", 3)
			Expect(msgs[0].ID).To(BeNumerically(">", 0))
			Expect(msgs[1].ID).To(BeNumerically(">", msgs[0].ID))
			Expect(msgs[2].ID).To(BeNumerically(">", msgs[1].ID))
		})

		It("lists a conversation in id order and keeps attachments", func() {
			_, err := driver.AppendMessage(ctx, &storage.Message{
				ConversationID: "conv-b",
				Role:           "assistant",
				Content:        "here is a deck",
				Attachments:    []storage.Attachment{{Type: "flashcards", Title: "Particles"}},
			})
			Expect(err).NotTo(HaveOccurred())
			appendN("conv-other", 1)
			appendN("conv-b", 1)

			msgs, err := driver.ListMessages(ctx, "conv-b")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].Attachments).To(ConsistOf(storage.Attachment{Type: "flashcards", Title: "Particles"}))
			Expect(msgs[0].ID).To(BeNumerically("<", msgs[1].ID))
		})

		It("lists an inclusive range", func() {
			msgs := appendN("conv-c", 5)
			got, err := driver.ListMessageRange(ctx, "conv-c", msgs[1].ID, msgs[3].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(3))
			Expect(got[0].Content).To(Equal("message 2"))
			Expect(got[2].Content).To(Equal("message 4"))
		})
	})

	Describe("episodes", func() {
		It("rejects a second OPEN episode for a session", func() {
			Expect(driver.CreateEpisode(ctx, &storage.Episode{ID: nextEpisodeID(), SessionID: "s1"})).To(Succeed())
			err := driver.CreateEpisode(ctx, &storage.Episode{ID: nextEpisodeID(), SessionID: "s1"})
			Expect(err).To(MatchError(storage.ErrOpenEpisodeExists))
		})

		It("allows one OPEN episode under concurrent creation", func() {
			var (
				wg      sync.WaitGroup
				created atomic.Int32
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					err := driver.CreateEpisode(ctx, &storage.Episode{ID: nextEpisodeID(), SessionID: "race"})
					if err == nil {
						created.Add(1)
						return
					}
					Expect(err).To(MatchError(storage.ErrOpenEpisodeExists))
				}()
			}
			wg.Wait()
			Expect(created.Load()).To(Equal(int32(1)))
		})

		It("returns NotFoundError when no episode is open", func() {
			_, err := driver.GetOpenEpisode(ctx, "nobody")
			Expect(storage.IsNotFound(err)).To(BeTrue())

			_, err = driver.GetEpisode(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("sets start once and always advances end", func() {
			ep := &storage.Episode{ID: nextEpisodeID(), SessionID: "s2"}
			Expect(driver.CreateEpisode(ctx, ep)).To(Succeed())

			got, err := driver.ExtendEpisode(ctx, ep.ID, 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.StartMessageID).To(Equal(int64(7)))
			Expect(got.EndMessageID).To(Equal(int64(7)))

			got, err = driver.ExtendEpisode(ctx, ep.ID, 9)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.StartMessageID).To(Equal(int64(7)))
			Expect(got.EndMessageID).To(Equal(int64(9)))
			Expect(got.MessageCount()).To(Equal(int64(3)))
		})

		It("transitions with compare-and-set and frees the session", func() {
			ep := &storage.Episode{ID: nextEpisodeID(), SessionID: "s3"}
			Expect(driver.CreateEpisode(ctx, ep)).To(Succeed())

			closed, err := driver.TransitionEpisode(ctx, ep.ID, storage.EpisodeOpen, storage.EpisodeClosed, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(closed.Status).To(Equal(storage.EpisodeClosed))
			Expect(closed.ClosedAt).NotTo(BeNil())

			_, err = driver.TransitionEpisode(ctx, ep.ID, storage.EpisodeOpen, storage.EpisodeClosed, nil)
			Expect(err).To(MatchError(storage.ErrStatusConflict))

			_, err = driver.ExtendEpisode(ctx, ep.ID, 100)
			Expect(err).To(MatchError(storage.ErrStatusConflict))

			Expect(driver.CreateEpisode(ctx, &storage.Episode{ID: nextEpisodeID(), SessionID: "s3"})).To(Succeed())
		})

		It("stores a summary with the transition", func() {
			ep := &storage.Episode{ID: nextEpisodeID(), SessionID: "s4"}
			Expect(driver.CreateEpisode(ctx, ep)).To(Succeed())
			_, err := driver.TransitionEpisode(ctx, ep.ID, storage.EpisodeOpen, storage.EpisodeProcessing, nil)
			Expect(err).NotTo(HaveOccurred())

			summary := "learner practiced particles"
			done, err := driver.TransitionEpisode(ctx, ep.ID, storage.EpisodeProcessing, storage.EpisodeClosed, &summary)
			Expect(err).NotTo(HaveOccurred())
			Expect(done.Summary).To(HaveValue(Equal(summary)))
		})

		It("returns NotFoundError when transitioning an unknown episode", func() {
			_, err := driver.TransitionEpisode(ctx, "missing", storage.EpisodeOpen, storage.EpisodeClosed, nil)
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("summaries", func() {
		It("starts empty", func() {
			s, err := driver.GetSummary(ctx, "fresh")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Text).To(BeNil())
			Expect(s.LastSummarizedMessageID).To(BeZero())
		})

		It("advances the bookmark with compare-and-set", func() {
			Expect(driver.AdvanceSummary(ctx, "conv", 0, "first", 4)).To(Succeed())

			s, err := driver.GetSummary(ctx, "conv")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Text).To(HaveValue(Equal("first")))
			Expect(s.LastSummarizedMessageID).To(Equal(int64(4)))

			Expect(driver.AdvanceSummary(ctx, "conv", 0, "stale", 6)).To(MatchError(storage.ErrBookmarkConflict))
			Expect(driver.AdvanceSummary(ctx, "conv", 3, "stale", 6)).To(MatchError(storage.ErrBookmarkConflict))
			Expect(driver.AdvanceSummary(ctx, "conv", 4, "second", 2)).To(MatchError(storage.ErrBookmarkRegression))

			s, err = driver.GetSummary(ctx, "conv")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Text).To(HaveValue(Equal("first")))

			Expect(driver.AdvanceSummary(ctx, "conv", 4, "second", 8)).To(Succeed())
			s, err = driver.GetSummary(ctx, "conv")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Text).To(HaveValue(Equal("second")))
			Expect(s.LastSummarizedMessageID).To(Equal(int64(8)))
		})

		It("lets exactly one concurrent writer win", func() {
			var (
				wg   sync.WaitGroup
				wins atomic.Int32
			)
			for i := 0; i < 6; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					if err := driver.AdvanceSummary(ctx, "racy", 0, fmt.Sprintf("w%d", i), int64(10+i)); err == nil {
						wins.Add(1)
					} else {
						Expect(err).To(MatchError(storage.ErrBookmarkConflict))
					}
				}(i)
			}
			wg.Wait()
			Expect(wins.Load()).To(Equal(int32(1)))
		})

		It("lists conversations with unsummarized messages beyond the raw buffer", func() {
			msgs := appendN("busy", 8)
			appendN("quiet", 3)

			pending, err := driver.PendingSummaries(ctx, 6)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(ConsistOf("busy"))

			Expect(driver.AdvanceSummary(ctx, "busy", 0, "s", msgs[1].ID)).To(Succeed())
			pending, err = driver.PendingSummaries(ctx, 6)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())
		})
	})

	Describe("artifacts", func() {
		It("assigns store ids of at least the minimum length", func() {
			ref, err := driver.CreateArtifact(ctx, "u1", artifact.Proposal{
				Type:  "flashcards",
				Title: "Particles",
				Data:  map[string]any{"cards": float64(12)},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(artifact.ValidID(ref.ID)).To(BeTrue())

			got, err := driver.GetArtifact(ctx, ref.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("Particles"))
			Expect(got.Data).To(HaveKeyWithValue("cards", float64(12)))
		})

		It("returns NotFoundError for unknown ids", func() {
			_, err := driver.GetArtifact(ctx, "deck-1")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("lists a user's recent artifacts up to the limit", func() {
			for i := 0; i < 3; i++ {
				_, err := driver.CreateArtifact(ctx, "u2", artifact.Proposal{Type: "quiz", Title: fmt.Sprintf("q%d", i)})
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := driver.CreateArtifact(ctx, "someone-else", artifact.Proposal{Type: "quiz", Title: "x"})
			Expect(err).NotTo(HaveOccurred())

			refs, err := driver.RecentArtifacts(ctx, "u2", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(refs).To(HaveLen(2))
			for _, r := range refs {
				Expect(r.UserID).To(Equal("u2"))
			}
		})
	})
}
