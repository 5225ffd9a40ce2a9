// Package config implements the config command
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arribada/audiocontroller/cmd/usage"
	"github.com/arribada/audiocontroller/internal/conf"
)

// Command creates the config command, which prints the effective configuration
func Command(settings *conf.Settings) *cobra.Command {
	var writePath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, the config file and environment overrides are applied. Secrets are masked unless --write is used.",
		Args:  usage.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if writePath != "" {
				if err := conf.SaveYAMLConfig(writePath, settings); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", writePath)
				return nil
			}

			data, err := conf.ToYAML(settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&writePath, "write", "", "Write the full configuration to this path")
	return cmd
}
