// Package devices implements the devices command
package devices

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arribada/audiocontroller/cmd/usage"
	"github.com/arribada/audiocontroller/internal/conf"
	"github.com/arribada/audiocontroller/internal/myaudio"
)

// Command creates the devices command, which lists capture devices
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Long:  "List the capture devices of the configured audio backend. Either the ID or a part of the name can be passed as <device-id>.",
		Args:  usage.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := myaudio.ListDevices(settings.Audio.Backend)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tDEFAULT\tNAME\tID")
			for _, d := range devices {
				def := ""
				if d.IsDefault {
					def = "*"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.Index, def, d.Name, d.ID)
			}
			return w.Flush()
		},
	}
}
