package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/queue"
	"github.com/papercomputeco/sensei/pkg/queue/nop"
)

var _ = Describe("Queue", func() {
	It("accepts named tasks", func() {
		q := nop.NewQueue()
		Expect(q.Enqueue(context.Background(), queue.TaskSummarizeConversation, nil)).To(Succeed())
		Expect(q.Close()).To(Succeed())
	})

	It("rejects empty task names", func() {
		Expect(nop.NewQueue().Enqueue(context.Background(), "", nil)).To(MatchError(queue.ErrEmptyTaskName))
	})
})
