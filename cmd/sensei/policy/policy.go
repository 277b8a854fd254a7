// Package policycmder evaluates and validates the capability manifest and
// governance rules without starting the runtime.
package policycmder

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/sensei/pkg/config"
	"github.com/papercomputeco/sensei/pkg/policy"
)

const policyLongDesc string = `Evaluate and validate sensei policy.

The manifest and governance files come from --manifest/--governance, then
policy.manifest_path/policy.governance_path in sensei.toml, then the
bundled defaults.

  sensei policy tool <tool-id> --identity user        Check a tool call
  sensei policy intent <intent-id> --identity guest   Check an intent
  sensei policy memory-save <text>                    Match a save rule
  sensei policy validate                              Validate the files`

const policyShortDesc string = "Evaluate and validate policy"

type policyCommander struct {
	manifest     string
	governance   string
	identityType string
	userID       string
}

func NewPolicyCmd() *cobra.Command {
	cmder := &policyCommander{}

	cmd := &cobra.Command{
		Use:   "policy",
		Short: policyShortDesc,
		Long:  policyLongDesc,
	}

	// Persistent so every subcommand can override the configured files.
	for key, target := range map[string]*string{
		config.FlagManifest:   &cmder.manifest,
		config.FlagGovernance: &cmder.governance,
	} {
		def := config.ServeFlags[key]
		cmd.PersistentFlags().StringVar(target, def.Name, "", def.Description)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "tool <tool-id>",
		Short: "Check whether an identity may call a tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := cmder.engine(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), engine.EvaluateToolCall(args[0], cmder.userID, cmder.identityType))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "intent <intent-id>",
		Short: "Check whether an identity may run an intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := cmder.engine(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), engine.EvaluateIntent(args[0], cmder.userID, cmder.identityType))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "memory-save <text>",
		Short: "Show the highest-priority save rule matching a text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := cmder.engine(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"match": engine.EvaluateMemorySave(strings.Join(args, " "))})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the manifest and governance files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cmder.load(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "policy ok: %d tools, %d identities, %d guardrails, %d memory save rules\n",
				len(cfg.Manifest.Tools),
				len(cfg.Manifest.Identities),
				len(cfg.Governance.Guardrails),
				len(cfg.Rules()),
			)
			return nil
		},
	})

	cmd.PersistentFlags().StringVar(&cmder.identityType, "identity", "user", "Caller identity type")
	cmd.PersistentFlags().StringVar(&cmder.userID, "user", "", "Learner id recorded with the decision")

	return cmd
}

func (c *policyCommander) load(cmd *cobra.Command) (*policy.Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.ServeFlags, []string{config.FlagManifest, config.FlagGovernance})
	cfg := config.FromViper(v)

	return policy.LoadConfig(cfg.Policy.ManifestPath, cfg.Policy.GovernancePath)
}

func (c *policyCommander) engine(cmd *cobra.Command) (*policy.Engine, error) {
	cfg, err := c.load(cmd)
	if err != nil {
		return nil, err
	}
	return policy.NewEngine(cfg, nil, nil)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
