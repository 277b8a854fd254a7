package queueutils_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/queue"
	"github.com/papercomputeco/sensei/pkg/queue/local"
	"github.com/papercomputeco/sensei/pkg/queue/nop"
	queueutils "github.com/papercomputeco/sensei/pkg/queue/utils"
)

var _ = Describe("NewQueue", func() {
	ctx := context.Background()

	It("builds the local worker pool", func() {
		q, err := queueutils.NewQueue(ctx, &queueutils.NewQueueOpts{
			Backend: "local",
			Workers: 1,
			Handler: func(context.Context, *queue.Task) error { return nil },
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(q).To(BeAssignableToTypeOf(&local.Queue{}))
		Expect(q.Close()).To(Succeed())
	})

	It("builds the nop queue", func() {
		q, err := queueutils.NewQueue(ctx, &queueutils.NewQueueOpts{Backend: "nop"})
		Expect(err).NotTo(HaveOccurred())
		Expect(q).To(BeAssignableToTypeOf(&nop.Queue{}))
	})

	It("rejects unknown backends", func() {
		_, err := queueutils.NewQueue(ctx, &queueutils.NewQueueOpts{Backend: "sqs"})
		Expect(err).To(MatchError(queue.ErrUnknownBackend))
	})
})
