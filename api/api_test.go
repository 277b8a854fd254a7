package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/aperture"
	senseilogger "github.com/papercomputeco/sensei/pkg/logger"
	"github.com/papercomputeco/sensei/pkg/memory"
	"github.com/papercomputeco/sensei/pkg/metrics"
	"github.com/papercomputeco/sensei/pkg/policy"
	testutils "github.com/papercomputeco/sensei/pkg/utils/test"
)

const reloadManifest = `
tools:
  - id: create_quiz
  - id: delete_memory
identities:
  user:
    tool_access: ["*"]
`

func postJSON(app *fiber.App, path string, body any) *http.Response {
	b, err := json.Marshal(body)
	Expect(err).NotTo(HaveOccurred())
	req, err := http.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func decode(resp *http.Response, out any) {
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(body, out)).To(Succeed(), string(body))
}

var _ = Describe("Server", func() {
	var (
		server   *Server
		engine   *policy.Engine
		episodic *testutils.StubEpisodic
		m        *metrics.Metrics
	)

	BeforeEach(func() {
		cfg, err := policy.DefaultConfig()
		Expect(err).NotTo(HaveOccurred())
		m = metrics.New()
		engine, err = policy.NewEngine(cfg, nil, m)
		Expect(err).NotTo(HaveOccurred())

		episodic = &testutils.StubEpisodic{Snippets: []memory.Snippet{{Summary: "Asked about keigo last week"}}}
		assembler := aperture.New(aperture.Config{Episodic: episodic, Metrics: m})

		server, err = NewServer(Config{ListenAddr: ":0", Metrics: m}, engine, assembler, senseilogger.NewLogger(false))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("requires a policy engine and an assembler", func() {
			_, err := NewServer(Config{}, nil, aperture.New(aperture.Config{}), nil)
			Expect(err).To(HaveOccurred())
			_, err = NewServer(Config{}, engine, nil, nil)
			Expect(err).To(HaveOccurred())
		})
	})

	It("answers ping", func() {
		req, err := http.NewRequest(http.MethodGet, "/ping", nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
	})

	Describe("POST /policy/evaluate/tool", func() {
		It("returns the decision", func() {
			resp := postJSON(server.app, "/policy/evaluate/tool", ToolRequest{ToolID: "create_quiz", IdentityType: "guest"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var d policy.Decision
			decode(resp, &d)
			Expect(d.Allowed).To(BeFalse())
			Expect(d.Reason).NotTo(BeEmpty())
		})

		It("rejects a request without an identity", func() {
			resp := postJSON(server.app, "/policy/evaluate/tool", ToolRequest{ToolID: "create_quiz"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("POST /policy/evaluate/intent", func() {
		It("denies restricted intents to learners", func() {
			resp := postJSON(server.app, "/policy/evaluate/intent", IntentRequest{IntentID: "system_wipe", IdentityType: "user"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var d policy.Decision
			decode(resp, &d)
			Expect(d.Allowed).To(BeFalse())
		})

		It("requires an intent id", func() {
			resp := postJSON(server.app, "/policy/evaluate/intent", IntentRequest{IdentityType: "user"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("POST /policy/evaluate/memory-save", func() {
		It("returns the highest priority match", func() {
			resp := postJSON(server.app, "/policy/evaluate/memory-save", MemorySaveRequest{Text: "I keep mixing up these particles"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out MemorySaveResponse
			decode(resp, &out)
			Expect(out.Match).NotTo(BeNil())
			Expect(out.Match.Type).To(Equal("learning_struggle"))
		})

		It("returns a null match when nothing applies", func() {
			resp := postJSON(server.app, "/policy/evaluate/memory-save", MemorySaveRequest{Text: "hello"})
			var out MemorySaveResponse
			decode(resp, &out)
			Expect(out.Match).To(BeNil())
		})
	})

	Describe("POST /policy/reload", func() {
		It("conflicts when the policy has no backing files", func() {
			resp := postJSON(server.app, "/policy/reload", map[string]any{})
			Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))
		})

		Context("with file-backed policy", func() {
			var manifestPath string

			BeforeEach(func() {
				dir := GinkgoT().TempDir()
				manifestPath = filepath.Join(dir, "manifest.yaml")
				Expect(os.WriteFile(manifestPath, []byte(reloadManifest), 0o600)).To(Succeed())

				cfg, err := policy.LoadConfig(manifestPath, "")
				Expect(err).NotTo(HaveOccurred())
				Expect(engine.Reload(cfg)).To(Succeed())
			})

			It("swaps in the new files", func() {
				Expect(os.WriteFile(manifestPath, []byte(reloadManifest+"  guest:\n    tool_access: [create_quiz]\n"), 0o600)).To(Succeed())

				resp := postJSON(server.app, "/policy/reload", map[string]any{})
				Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
				Expect(engine.EvaluateToolCall("create_quiz", "", "guest").Allowed).To(BeTrue())
			})

			It("keeps the running policy when the new files are invalid", func() {
				Expect(os.WriteFile(manifestPath, []byte("tools: [\n"), 0o600)).To(Succeed())

				resp := postJSON(server.app, "/policy/reload", map[string]any{})
				Expect(resp.StatusCode).To(Equal(fiber.StatusUnprocessableEntity))
				Expect(engine.EvaluateToolCall("create_quiz", "", "user").Allowed).To(BeTrue())
			})
		})
	})

	Describe("POST /context", func() {
		It("returns the snapshot and narrative", func() {
			resp := postJSON(server.app, "/context", ContextRequest{UserID: "learner-1", Query: "keigo"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out ContextResponse
			decode(resp, &out)
			Expect(out.Context.Memories).To(HaveLen(1))
			Expect(out.Narrative).To(ContainSubstring("Asked about keigo"))
		})

		It("returns an empty snapshot when a store is too slow", func() {
			episodic.Delay = 300 * time.Millisecond

			resp := postJSON(server.app, "/context", ContextRequest{UserID: "learner-1", TimeoutMS: 50})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out ContextResponse
			decode(resp, &out)
			Expect(out.Context.Memories).To(BeEmpty())
			Expect(out.Narrative).To(BeEmpty())
		})

		It("requires a user", func() {
			resp := postJSON(server.app, "/context", ContextRequest{Query: "keigo"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	It("serves prometheus metrics", func() {
		postJSON(server.app, "/context", ContextRequest{UserID: "learner-1"})

		req, err := http.NewRequest(http.MethodGet, "/metrics", nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring("sensei_aperture_assemble_seconds"))
	})
})
