package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"retake/internal/config"
)

func newConfigCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage retake configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigInitCommand(cc))
	cmd.AddCommand(newConfigShowCommand(cc))
	return cmd
}

func newConfigInitCommand(cc *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *cc.configFlag
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}
			expanded, err := config.ExpandPath(path)
			if err != nil {
				return err
			}

			if !force {
				if _, err := os.Stat(expanded); err == nil {
					return fmt.Errorf("config already exists at %s (use --force to overwrite)", expanded)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}

			if err := config.CreateSample(expanded); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote sample config to %s\n", expanded)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	return cmd
}

func newConfigShowCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			shown := *cc.cfg
			if shown.Immich.APIKey != "" {
				shown.Immich.APIKey = "<redacted>"
			}

			encoded, err := toml.Marshal(shown)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}

			out := cmd.OutOrStdout()
			if cc.cfgExists {
				fmt.Fprintf(out, "# %s\n", cc.cfgPath)
			} else {
				fmt.Fprintf(out, "# defaults (no config file at %s)\n", cc.cfgPath)
			}
			fmt.Fprint(out, string(encoded))
			return nil
		},
	}
}
