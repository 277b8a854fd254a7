package senseicmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	senseicmder "github.com/papercomputeco/sensei/cmd/sensei"
)

var _ = Describe("NewSenseiCmd", func() {
	It("wires every subcommand", func() {
		cmd := senseicmder.NewSenseiCmd()
		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "summarize", "policy", "migrate", "config", "init", "version"))
	})

	It("exposes the global flags", func() {
		cmd := senseicmder.NewSenseiCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})
})
