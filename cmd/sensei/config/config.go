// Package configcmder provides the config command for managing persistent
// sensei configuration stored in the .sensei/ directory.
package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/sensei/pkg/config"
)

const configLongDesc string = `Manage persistent sensei configuration.

Configuration is stored as sensei.toml in the .sensei/ directory and provides
default values for command flags. SENSEI_* environment variables and CLI
flags take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example:
  storage.driver, storage.postgres_dsn, llm.provider, llm.model,
  aperture.timeout, episode.close_threshold, summarizer.schedule,
  queue.backend, graph.merge_threshold

Use subcommands to get, set, or list configuration values:
  sensei config set <key> <value>    Set a configuration value
  sensei config get <key>            Get a configuration value
  sensei config list                 List all configuration values

Examples:
  sensei config set llm.provider anthropic
  sensei config set aperture.timeout 3s
  sensei config get queue.backend
  sensei config list`

const configShortDesc string = "Manage persistent sensei configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
