package llm_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/papercomputeco/sensei/pkg/llm"
)

var _ = Describe("ExtractJSON", func() {
	DescribeTable("finds the payload",
		func(reply, want string) {
			got, ok := llm.ExtractJSON(reply)
			Expect(ok).To(BeTrue())
			Expect(got).To(Equal(want))
		},
		Entry("bare object", `{"a":1}`, `{"a":1}`),
		Entry("json fence", "```json\n{\"a\":1}\n```", `{"a":1}`),
		Entry("plain fence", "```\n{\"a\":1}\n```", `{"a":1}`),
		Entry("surrounding prose", `Sure! {"a":{"b":2}} Hope that helps.`, `{"a":{"b":2}}`),
		Entry("array", "Here:\n[{\"s\":\"x\"}]", `[{"s":"x"}]`),
	)

	It("reports replies without JSON", func() {
		_, ok := llm.ExtractJSON("I cannot classify this.")
		Expect(ok).To(BeFalse())

		_, ok = llm.ExtractJSON("} backwards {")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("DecodeJSON", func() {
	It("decodes fenced replies", func() {
		var v struct {
			Scope string `json:"scope"`
		}
		Expect(llm.DecodeJSON("```json\n{\"scope\":\"session\"}\n```", &v)).To(Succeed())
		Expect(v.Scope).To(Equal("session"))
	})

	It("returns ErrNoJSON when nothing is found", func() {
		var v map[string]any
		Expect(llm.DecodeJSON("nope", &v)).To(MatchError(llm.ErrNoJSON))
	})

	It("fails on malformed JSON", func() {
		var v map[string]any
		Expect(llm.DecodeJSON(`{"a": }`, &v)).To(HaveOccurred())
	})
})

var _ = Describe("WithLogging", func() {
	It("passes replies through and logs at debug", func() {
		core, logs := observer.New(zap.DebugLevel)
		call := llm.WithLogging(func(context.Context, string) (string, error) {
			return "ok", nil
		}, "classifier", zap.New(core))

		out, err := call(context.Background(), "prompt")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("ok"))
		Expect(logs.FilterMessage("model call").Len()).To(Equal(1))
	})

	It("logs failures at warn", func() {
		core, logs := observer.New(zap.DebugLevel)
		boom := errors.New("boom")
		call := llm.WithLogging(func(context.Context, string) (string, error) {
			return "", boom
		}, "summarizer", zap.New(core))

		_, err := call(context.Background(), "prompt")
		Expect(err).To(MatchError(boom))
		entries := logs.FilterMessage("model call failed").All()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Level).To(Equal(zap.WarnLevel))
	})
})
