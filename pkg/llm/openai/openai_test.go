package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/llm"
	"github.com/papercomputeco/sensei/pkg/llm/openai"
)

var _ = Describe("Caller", func() {
	var (
		server  *httptest.Server
		status  int
		reply   map[string]any
		gotBody map[string]any
		gotAuth string
	)

	BeforeEach(func() {
		status = http.StatusOK
		gotBody = nil
		reply = map[string]any{
			"model":   "gpt-4o-mini",
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": `{"ok":true}`}}},
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/v1/chat/completions"))
			gotAuth = r.Header.Get("Authorization")
			Expect(json.NewDecoder(r.Body).Decode(&gotBody)).To(Succeed())
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(reply)
		}))
		DeferCleanup(server.Close)
	})

	It("requires an API key", func() {
		_, err := openai.New(openai.Config{BaseURL: server.URL})
		Expect(err).To(MatchError(llm.ErrMissingAPIKey))
	})

	It("sends the prompt and returns the first choice", func() {
		call, err := openai.New(openai.Config{BaseURL: server.URL, APIKey: "sk-test", JSON: true})
		Expect(err).NotTo(HaveOccurred())

		out, err := call(context.Background(), "classify this")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"ok":true}`))
		Expect(gotAuth).To(Equal("Bearer sk-test"))
		Expect(gotBody).To(HaveKeyWithValue("model", openai.DefaultModel))
		Expect(gotBody).To(HaveKeyWithValue("response_format", map[string]any{"type": "json_object"}))
	})

	It("omits the response format for text callers", func() {
		call, _ := openai.New(openai.Config{BaseURL: server.URL, APIKey: "sk-test"})
		_, err := call(context.Background(), "summarize")
		Expect(err).NotTo(HaveOccurred())
		Expect(gotBody).NotTo(HaveKey("response_format"))
	})

	It("surfaces API errors", func() {
		status = http.StatusUnauthorized
		call, _ := openai.New(openai.Config{BaseURL: server.URL, APIKey: "sk-test"})
		_, err := call(context.Background(), "x")
		Expect(err).To(MatchError(ContainSubstring("status 401")))
	})

	It("fails on an empty choice list", func() {
		reply = map[string]any{"choices": []any{}}
		call, _ := openai.New(openai.Config{BaseURL: server.URL, APIKey: "sk-test"})
		_, err := call(context.Background(), "x")
		Expect(err).To(MatchError(llm.ErrEmptyReply))
	})
})
