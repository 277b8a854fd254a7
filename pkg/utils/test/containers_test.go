package testutils_test

import (
	"context"
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	testutils "github.com/papercomputeco/sensei/pkg/utils/test"
)

var _ = Describe("IntegrationEnabled", func() {
	It("follows SENSEI_INTEGRATION", func() {
		GinkgoT().Setenv("SENSEI_INTEGRATION", "1")
		Expect(testutils.IntegrationEnabled()).To(BeTrue())

		GinkgoT().Setenv("SENSEI_INTEGRATION", "")
		Expect(testutils.IntegrationEnabled()).To(BeFalse())
	})
})

var _ = Describe("StartRedis", func() {
	It("exposes the mapped host port", func() {
		if !testutils.IntegrationEnabled() {
			Skip("set SENSEI_INTEGRATION=1 to run container specs")
		}
		ctx := context.Background()

		c, err := testutils.StartRedis(ctx)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { Expect(c.Terminate(ctx)).To(Succeed()) })

		host, port, err := net.SplitHostPort(c.Addr)
		Expect(err).NotTo(HaveOccurred())
		Expect(host).NotTo(BeEmpty())
		Expect(port).NotTo(Equal("6379/tcp"))

		conn, err := net.Dial("tcp", c.Addr)
		Expect(err).NotTo(HaveOccurred())
		Expect(conn.Close()).To(Succeed())
	})
})
