package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/llm"
	"github.com/papercomputeco/sensei/pkg/llm/anthropic"
)

var _ = Describe("Caller", func() {
	var (
		server  *httptest.Server
		reply   map[string]any
		gotBody map[string]any
		headers http.Header
	)

	BeforeEach(func() {
		reply = map[string]any{
			"content": []any{
				map[string]any{"type": "text", "text": "part one, "},
				map[string]any{"type": "text", "text": "part two"},
			},
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/v1/messages"))
			headers = r.Header.Clone()
			Expect(json.NewDecoder(r.Body).Decode(&gotBody)).To(Succeed())
			_ = json.NewEncoder(w).Encode(reply)
		}))
		DeferCleanup(server.Close)
	})

	It("requires an API key", func() {
		_, err := anthropic.New(anthropic.Config{})
		Expect(err).To(MatchError(llm.ErrMissingAPIKey))
	})

	It("joins text blocks and sends the version headers", func() {
		call, err := anthropic.New(anthropic.Config{BaseURL: server.URL, APIKey: "key"})
		Expect(err).NotTo(HaveOccurred())

		out, err := call(context.Background(), "summarize")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("part one, part two"))
		Expect(headers.Get("x-api-key")).To(Equal("key"))
		Expect(headers.Get("anthropic-version")).NotTo(BeEmpty())
		Expect(gotBody).To(HaveKeyWithValue("max_tokens", BeNumerically("==", anthropic.DefaultMaxTokens)))
	})

	It("asks for JSON in the prompt when configured", func() {
		call, _ := anthropic.New(anthropic.Config{BaseURL: server.URL, APIKey: "key", JSON: true})
		_, err := call(context.Background(), "classify")
		Expect(err).NotTo(HaveOccurred())

		msgs := gotBody["messages"].([]any)
		content := msgs[0].(map[string]any)["content"].(string)
		Expect(content).To(HavePrefix("classify"))
		Expect(content).To(ContainSubstring("valid JSON"))
	})

	It("fails when no text comes back", func() {
		reply = map[string]any{"content": []any{}}
		call, _ := anthropic.New(anthropic.Config{BaseURL: server.URL, APIKey: "key"})
		_, err := call(context.Background(), "x")
		Expect(err).To(MatchError(llm.ErrEmptyReply))
	})
})
