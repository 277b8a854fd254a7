package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/sensei/cmd/sensei/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
		out     *bytes.Buffer
	)

	execute := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "sensei-config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// Create a local .sensei dir so the manager picks it up
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".sensei"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())

		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			Expect(execute("set", "queue.backend", "redis")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("Set queue.backend = redis"))

			_, err := os.Stat(filepath.Join(tmpDir, ".sensei", "sensei.toml"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects unknown keys", func() {
			err := execute("set", "invalid_key", "value")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unknown config key"))
		})

		It("rejects non-numeric values for numeric keys", func() {
			Expect(execute("set", "summarizer.chunk_words", "lots")).NotTo(Succeed())

			_, err := os.Stat(filepath.Join(tmpDir, ".sensei", "sensei.toml"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("requires exactly two arguments", func() {
			Expect(execute("set", "queue.backend")).NotTo(Succeed())
		})
	})

	Describe("get subcommand", func() {
		It("reads back a value written by set", func() {
			Expect(execute("set", "llm.model", "llama3.1")).To(Succeed())
			out.Reset()

			Expect(execute("get", "llm.model")).To(Succeed())
			Expect(out.String()).To(Equal("llm.model = llama3.1\n"))
		})

		It("reports unset keys", func() {
			Expect(execute("get", "storage.postgres_dsn")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("<not set>"))
		})

		It("rejects unknown keys", func() {
			Expect(execute("get", "nope")).NotTo(Succeed())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key with its value", func() {
			Expect(execute("set", "episode.close_threshold", "12")).To(Succeed())
			out.Reset()

			Expect(execute("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("sensei.toml"))
			Expect(out.String()).To(MatchRegexp(`episode\.close_threshold\s+= "12"`))
			Expect(out.String()).To(MatchRegexp(`aperture\.timeout\s+= "5s"`))
		})
	})
})
