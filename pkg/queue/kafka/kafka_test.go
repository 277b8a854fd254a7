package kafka_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/queue/kafka"
)

var _ = Describe("NewQueue", func() {
	It("requires brokers", func() {
		_, err := kafka.NewQueue(kafka.Config{Brokers: " , ", Topic: "t", Group: "g"})
		Expect(err).To(MatchError(ContainSubstring("broker")))
	})

	It("requires a topic and group", func() {
		_, err := kafka.NewQueue(kafka.Config{Brokers: "localhost:9092"})
		Expect(err).To(MatchError(ContainSubstring("topic and group")))
	})

	It("builds without dialing", func() {
		q, err := kafka.NewQueue(kafka.Config{Brokers: "localhost:9092, localhost:9093", Topic: "sensei.tasks", Group: "g"})
		Expect(err).NotTo(HaveOccurred())
		Expect(q.Close()).To(Succeed())
	})
})
