// Package studytest holds specs shared by study.Store implementations.
package studytest

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/study"
)

// StoreSpecs registers the shared specs. newStore must return an empty store.
func StoreSpecs(newStore func() study.Store) {
	var (
		ctx   context.Context
		store study.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
	})

	It("returns a nil plan for a learner without one", func() {
		plan, err := store.ActivePlanSummary(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(plan).To(BeNil())
	})

	It("replaces the active plan", func() {
		Expect(store.SetPlan(ctx, "u1", study.PlanSummary{TargetLevel: "N5", CurrentMilestone: "hiragana", HealthStatus: "on_track"})).To(Succeed())
		Expect(store.SetPlan(ctx, "u1", study.PlanSummary{TargetLevel: "N4", CurrentMilestone: "particles", HealthStatus: "behind"})).To(Succeed())

		plan, err := store.ActivePlanSummary(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(*plan).To(Equal(study.PlanSummary{TargetLevel: "N4", CurrentMilestone: "particles", HealthStatus: "behind"}))
	})

	It("deduplicates struggles and orders metrics newest first", func() {
		Expect(store.RecordStruggle(ctx, "u1", "particles")).To(Succeed())
		Expect(store.RecordStruggle(ctx, "u1", "particles")).To(Succeed())
		Expect(store.RecordStruggle(ctx, "u1", "  ")).To(Succeed())

		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < study.RecentMetricLimit+2; i++ {
			Expect(store.RecordMetric(ctx, "u1", study.Metric{
				Name:       fmt.Sprintf("quiz-%d", i),
				Value:      float64(i),
				RecordedAt: base.Add(time.Duration(i) * time.Hour),
			})).To(Succeed())
		}

		trends, err := store.PerformanceTrends(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(trends.IdentifiedStruggles).To(Equal([]string{"particles"}))
		Expect(trends.RecentMetrics).To(HaveLen(study.RecentMetricLimit))
		Expect(trends.RecentMetrics[0].Name).To(Equal(fmt.Sprintf("quiz-%d", study.RecentMetricLimit+1)))
	})

	It("keeps learners apart", func() {
		Expect(store.RecordStruggle(ctx, "u1", "kanji")).To(Succeed())
		trends, err := store.PerformanceTrends(ctx, "u2")
		Expect(err).NotTo(HaveOccurred())
		Expect(trends.IdentifiedStruggles).To(BeEmpty())
		Expect(trends.RecentMetrics).To(BeEmpty())
	})
}
