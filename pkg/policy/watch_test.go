package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/policy"
)

var _ = Describe("Watch", func() {
	It("returns ErrNoSource for the embedded defaults", func() {
		cfg, err := policy.DefaultConfig()
		Expect(err).NotTo(HaveOccurred())
		engine, err := policy.NewEngine(cfg, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.Watch(context.Background())).To(MatchError(policy.ErrNoSource))
	})

	It("reloads when the manifest file changes", func() {
		dir := GinkgoT().TempDir()
		manifestPath := filepath.Join(dir, "manifest.yaml")
		governancePath := filepath.Join(dir, "governance.yaml")
		Expect(os.WriteFile(manifestPath, []byte(testManifest), 0o600)).To(Succeed())
		Expect(os.WriteFile(governancePath, []byte(testGovernance), 0o600)).To(Succeed())

		cfg, err := policy.LoadConfig(manifestPath, governancePath)
		Expect(err).NotTo(HaveOccurred())
		engine, err := policy.NewEngine(cfg, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		_, ok := engine.Config().Tool("create_quiz")
		Expect(ok).To(BeFalse())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- engine.Watch(ctx) }()
		defer func() {
			cancel()
			Eventually(done).Should(Receive(MatchError(context.Canceled)))
		}()

		updated := strings.Replace(testManifest, "  - id: delete_memory\n", "  - id: delete_memory\n  - id: create_quiz\n", 1)
		// The watcher may not be registered yet on the first write.
		Eventually(func() bool {
			Expect(os.WriteFile(manifestPath, []byte(updated), 0o600)).To(Succeed())
			_, ok := engine.Config().Tool("create_quiz")
			return ok
		}).WithTimeout(5 * time.Second).WithPolling(100 * time.Millisecond).Should(BeTrue())
	})

	It("keeps the current policy when the changed file is invalid", func() {
		dir := GinkgoT().TempDir()
		manifestPath := filepath.Join(dir, "manifest.yaml")
		governancePath := filepath.Join(dir, "governance.yaml")
		Expect(os.WriteFile(manifestPath, []byte(testManifest), 0o600)).To(Succeed())
		Expect(os.WriteFile(governancePath, []byte(testGovernance), 0o600)).To(Succeed())

		cfg, err := policy.LoadConfig(manifestPath, governancePath)
		Expect(err).NotTo(HaveOccurred())
		engine, err := policy.NewEngine(cfg, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = engine.Watch(ctx) }()

		Expect(os.WriteFile(manifestPath, []byte("tools: [[["), 0o600)).To(Succeed())
		Consistently(func() bool {
			_, ok := engine.Config().Tool("delete_memory")
			return ok
		}).WithTimeout(300 * time.Millisecond).Should(BeTrue())
	})
})
