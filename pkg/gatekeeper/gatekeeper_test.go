package gatekeeper_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/gatekeeper"
	testutils "github.com/papercomputeco/sensei/pkg/utils/test"
)

var _ = Describe("Gatekeeper", func() {
	var (
		model *testutils.ScriptedLLM
		g     *gatekeeper.Gatekeeper
		ctx   context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		model = testutils.NewScriptedLLM()
		var err error
		g, err = gatekeeper.New(gatekeeper.Config{Call: model.Call})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a model call", func() {
		_, err := gatekeeper.New(gatekeeper.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("never sends greetings to the model", func() {
		c := g.EvaluateInteraction(ctx, "Hello sensei!", "Konnichiwa! Ready to practice?")
		Expect(c.IsMemorable).To(BeFalse())
		Expect(c.Scope).To(Equal(gatekeeper.ScopeNone))
		Expect(c.Category).To(Equal(gatekeeper.CategorySmallTalk))
		Expect(model.CallCount()).To(BeZero())
	})

	It("sends both messages with the rubric", func() {
		model.Default = `{"is_memorable": true, "scope": "permanent", "category": "learning_struggle", "reason": "persistent struggle", "priority": 4}`

		c := g.EvaluateInteraction(ctx, "I really struggle with particles like wa and ga.", "Let's practice them.")
		Expect(c).To(Equal(gatekeeper.Classification{
			IsMemorable: true,
			Scope:       gatekeeper.ScopePermanent,
			Category:    "learning_struggle",
			Reason:      "persistent struggle",
			Priority:    4,
		}))

		prompts := model.PromptsSnapshot()
		Expect(prompts).To(HaveLen(1))
		Expect(prompts[0]).To(ContainSubstring("PERMANENT"))
		Expect(prompts[0]).To(ContainSubstring("SESSION"))
		Expect(prompts[0]).To(ContainSubstring("IGNORE"))
		Expect(prompts[0]).To(ContainSubstring("particles like wa and ga"))
		Expect(prompts[0]).To(ContainSubstring("Let's practice them."))
	})

	It("tolerates code fences around the JSON", func() {
		model.Default = "Here you go:\n```json\n{\"is_memorable\": true, \"scope\": \"session\", \"category\": \"instruction\", \"priority\": 2}\n```"

		c := g.EvaluateInteraction(ctx, "For this chat, answer only in hiragana.", "Wakarimashita.")
		Expect(c.IsMemorable).To(BeTrue())
		Expect(c.Scope).To(Equal(gatekeeper.ScopeSession))
	})

	It("accepts camel case keys", func() {
		model.Default = `{"isMemorable": true, "scope": "PERMANENT", "category": "Goal", "priority": 3}`

		c := g.EvaluateInteraction(ctx, "I want to pass JLPT N3 next December.", "Great goal.")
		Expect(c.Scope).To(Equal(gatekeeper.ScopePermanent))
		Expect(c.Category).To(Equal("goal"))
	})

	DescribeTable("degrades malformed output to forget",
		func(reply string) {
			model.Default = reply
			c := g.EvaluateInteraction(ctx, "I live in Osaka.", "Nice city.")
			Expect(c.IsMemorable).To(BeFalse())
			Expect(c.Scope).To(Equal(gatekeeper.ScopeNone))
			Expect(c.Reason).To(Equal(gatekeeper.ReasonParseError))
		},
		Entry("prose only", "This seems memorable to me."),
		Entry("broken JSON", `{"is_memorable": tru`),
		Entry("missing verdict", `{"scope": "permanent"}`),
	)

	It("degrades model failures to forget", func() {
		model.Err = errors.New("connection refused")
		c := g.EvaluateInteraction(ctx, "I live in Osaka.", "Nice city.")
		Expect(c).To(Equal(gatekeeper.Forget(gatekeeper.ReasonModelError)))
	})

	Describe("normalization", func() {
		It("maps unknown scopes to none", func() {
			model.Default = `{"is_memorable": true, "scope": "forever", "priority": 3}`
			c := g.EvaluateInteraction(ctx, "My cat is called Mochi.", "Cute!")
			Expect(c.IsMemorable).To(BeFalse())
			Expect(c.Scope).To(Equal(gatekeeper.ScopeNone))
		})

		It("forces scope none when not memorable", func() {
			model.Default = `{"is_memorable": false, "scope": "permanent", "priority": 3}`
			c := g.EvaluateInteraction(ctx, "What time is it?", "Noon.")
			Expect(c.Scope).To(Equal(gatekeeper.ScopeNone))
		})

		It("clamps priority into range", func() {
			model.Default = `{"is_memorable": true, "scope": "permanent", "priority": 42}`
			Expect(g.EvaluateInteraction(ctx, "I am a nurse.", "Noted.").Priority).To(Equal(gatekeeper.MaxPriority))

			model.Default = `{"is_memorable": true, "scope": "permanent", "priority": -1}`
			Expect(g.EvaluateInteraction(ctx, "I am a nurse.", "Noted.").Priority).To(Equal(gatekeeper.MinPriority))
		})
	})
})

var _ = Describe("IsSmallTalk", func() {
	DescribeTable("greetings and politeness",
		func(text string) { Expect(gatekeeper.IsSmallTalk(text)).To(BeTrue()) },
		Entry(nil, "hi"),
		Entry(nil, "Hello there!"),
		Entry(nil, "Good morning, sensei."),
		Entry(nil, "thank you so much!!"),
		Entry(nil, "ok"),
		Entry(nil, "Arigatou gozaimasu"),
		Entry(nil, "   "),
	)

	DescribeTable("substantive messages",
		func(text string) { Expect(gatekeeper.IsSmallTalk(text)).To(BeFalse()) },
		Entry(nil, "Hi, I keep mixing up wa and ga."),
		Entry(nil, "Thanks, but I still don't get the te-form."),
		Entry(nil, "I want to read manga without a dictionary."),
	)
})

var _ = Describe("Route", func() {
	DescribeTable("destinations",
		func(c gatekeeper.Classification, want gatekeeper.Destination) {
			Expect(gatekeeper.Route(c)).To(Equal(want))
		},
		Entry("permanent fact goes to the graph",
			gatekeeper.Classification{IsMemorable: true, Scope: gatekeeper.ScopePermanent, Category: "preference"},
			gatekeeper.DestinationSemantic),
		Entry("permanent struggle goes to episodic memory",
			gatekeeper.Classification{IsMemorable: true, Scope: gatekeeper.ScopePermanent, Category: "learning_struggle"},
			gatekeeper.DestinationEpisodic),
		Entry("session scope is discarded",
			gatekeeper.Classification{IsMemorable: true, Scope: gatekeeper.ScopeSession, Category: "instruction"},
			gatekeeper.DestinationDiscard),
		Entry("not memorable is discarded",
			gatekeeper.Forget("x"),
			gatekeeper.DestinationDiscard),
	)

	It("names destinations", func() {
		Expect(gatekeeper.DestinationSemantic.String()).To(Equal("semantic"))
		Expect(gatekeeper.DestinationEpisodic.String()).To(Equal("episodic"))
		Expect(gatekeeper.DestinationDiscard.String()).To(Equal("discard"))
	})
})
