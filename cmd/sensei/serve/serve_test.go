package servecmder

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

var _ = Describe("NewServeCmd", func() {
	It("registers the config-backed flags", func() {
		cmd := NewServeCmd()
		for _, name := range []string{"listen", "storage-driver", "postgres", "queue-backend", "queue-workers", "aperture-timeout", "watch-policy"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
		Expect(cmd.Flags().Lookup("listen").DefValue).To(Equal(":8090"))
	})
})

var _ = Describe("sweeper", func() {
	It("rejects a malformed schedule", func() {
		_, err := newSweeper("every now and then", nil, zap.NewNop())
		Expect(err).To(MatchError(ContainSubstring("summarizer.schedule")))
	})

	It("waits until the next scheduled instant before sweeping", func() {
		s, err := newSweeper("*/15 * * * *", nil, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		now := time.Date(2026, 3, 1, 10, 7, 0, 0, time.UTC)
		s.now = func() time.Time { return now }

		var waited []time.Duration
		ctx, cancel := context.WithCancel(context.Background())
		s.after = func(d time.Duration) <-chan time.Time {
			waited = append(waited, d)
			cancel()
			return make(chan time.Time)
		}
		s.sweep = func(context.Context) (int, error) {
			Fail("swept before the schedule fired")
			return 0, nil
		}

		Expect(s.run(ctx)).To(Succeed())
		Expect(waited).To(Equal([]time.Duration{8 * time.Minute}))
	})

	It("keeps sweeping after a failed sweep", func() {
		s, err := newSweeper("* * * * *", nil, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		fired := make(chan time.Time)
		close(fired)
		s.after = func(time.Duration) <-chan time.Time { return fired }

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		calls := 0
		s.sweep = func(context.Context) (int, error) {
			calls++
			if calls == 3 {
				cancel()
				return 2, nil
			}
			return 0, errors.New("store unavailable")
		}

		Expect(s.run(ctx)).To(Succeed())
		Expect(calls).To(Equal(3))
	})
})
