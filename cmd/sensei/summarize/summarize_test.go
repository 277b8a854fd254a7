package summarizecmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	summarizecmder "github.com/papercomputeco/sensei/cmd/sensei/summarize"
)

var _ = Describe("NewSummarizeCmd", func() {
	It("requires at least one conversation id", func() {
		cmd := summarizecmder.NewSummarizeCmd()
		Expect(cmd.Args(cmd, []string{})).NotTo(Succeed())
		Expect(cmd.Args(cmd, []string{"conv-a", "conv-b"})).To(Succeed())
	})

	It("registers the storage flags", func() {
		cmd := summarizecmder.NewSummarizeCmd()
		for _, name := range []string{"storage-driver", "sqlite", "postgres"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
		Expect(cmd.Flags().Lookup("storage-driver").DefValue).To(Equal("sqlite"))
	})
})
