// Package senseicmder
package senseicmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/sensei/cmd/sensei/config"
	initcmder "github.com/papercomputeco/sensei/cmd/sensei/init"
	migratecmder "github.com/papercomputeco/sensei/cmd/sensei/migrate"
	policycmder "github.com/papercomputeco/sensei/cmd/sensei/policy"
	servecmder "github.com/papercomputeco/sensei/cmd/sensei/serve"
	summarizecmder "github.com/papercomputeco/sensei/cmd/sensei/summarize"
	versioncmder "github.com/papercomputeco/sensei/cmd/version"
)

const senseiLongDesc string = `Sensei is the memory and context runtime for a tutoring agent.

It assembles per-turn context, enforces tool and memory policy, gates what
is worth remembering, and keeps long conversations summarized.

Run services using:
  sensei serve             Run the operator API, MCP endpoint and workers
  sensei summarize <id>    Fold a conversation into its running summary
  sensei policy validate   Check the manifest and governance files
  sensei migrate           Apply storage migrations`

const senseiShortDesc string = "Sensei - tutoring agent memory runtime"

func NewSenseiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "sensei",
		Short:        senseiShortDesc,
		Long:         senseiLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .sensei/ state directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(summarizecmder.NewSummarizeCmd())
	cmd.AddCommand(policycmder.NewPolicyCmd())
	cmd.AddCommand(migratecmder.NewMigrateCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
