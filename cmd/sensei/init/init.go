// Package initcmder provides the init command for initializing a local
// .sensei directory in the current working directory.
package initcmder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/sensei/pkg/config"
)

const (
	dirName = ".sensei"
)

const initLongDesc string = `Initialize a new .sensei/ directory in the current working directory.

Creates a local .sensei/ directory that takes precedence over the default
~/.sensei/ directory for storage, configuration and the resource index.

Use --preset to write a sensei.toml preconfigured for a model provider.

Examples:
  sensei init
  sensei init --preset anthropic`

const initShortDesc string = "Initialize a local .sensei/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Model provider preset ("+strings.Join(config.ValidPresetNames(), ", ")+")")

	return cmd
}

func runInit(w io.Writer, preset string) error {
	var cfg *config.Config
	if preset != "" {
		var err error
		cfg, err = config.PresetConfig(preset)
		if err != nil {
			return err
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Fprintf(w, "Already initialized: %s\n", dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .sensei directory: %w", err)
		}
		fmt.Fprintf(w, "Initialized .sensei directory: %s\n", dir)
	}

	if cfg == nil {
		return nil
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "Wrote %s preset to %s\n", preset, cfger.GetTarget())
	return nil
}
