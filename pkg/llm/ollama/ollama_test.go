package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/llm"
	"github.com/papercomputeco/sensei/pkg/llm/ollama"
)

var _ = Describe("Caller", func() {
	var (
		server  *httptest.Server
		reply   map[string]any
		gotBody map[string]any
		delay   time.Duration
	)

	BeforeEach(func() {
		delay = 0
		reply = map[string]any{"message": map[string]any{"role": "assistant", "content": "summary text"}, "done": true}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/chat"))
			Expect(json.NewDecoder(r.Body).Decode(&gotBody)).To(Succeed())
			time.Sleep(delay)
			_ = json.NewEncoder(w).Encode(reply)
		}))
		DeferCleanup(server.Close)
	})

	It("returns the message content with streaming disabled", func() {
		call := ollama.New(ollama.Config{BaseURL: server.URL + "/", Model: "llama3.2"})

		out, err := call(context.Background(), "summarize")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("summary text"))
		Expect(gotBody).To(HaveKeyWithValue("stream", false))
		Expect(gotBody).NotTo(HaveKey("format"))
	})

	It("requests JSON format when configured", func() {
		call := ollama.New(ollama.Config{BaseURL: server.URL, JSON: true})
		_, err := call(context.Background(), "classify")
		Expect(err).NotTo(HaveOccurred())
		Expect(gotBody).To(HaveKeyWithValue("format", "json"))
	})

	It("surfaces server-side errors", func() {
		reply = map[string]any{"error": "model not found"}
		call := ollama.New(ollama.Config{BaseURL: server.URL})
		_, err := call(context.Background(), "x")
		Expect(err).To(MatchError(ContainSubstring("model not found")))
	})

	It("fails on empty content", func() {
		reply = map[string]any{"message": map[string]any{"content": ""}}
		call := ollama.New(ollama.Config{BaseURL: server.URL})
		_, err := call(context.Background(), "x")
		Expect(err).To(MatchError(llm.ErrEmptyReply))
	})

	It("honors context cancellation", func() {
		delay = 200 * time.Millisecond
		call := ollama.New(ollama.Config{BaseURL: server.URL})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := call(ctx, "x")
		Expect(err).To(HaveOccurred())
	})
})
