// Package replay implements the replay command
package replay

import (
	"github.com/spf13/cobra"

	"github.com/arribada/audiocontroller/cmd/usage"
	"github.com/arribada/audiocontroller/internal/analysis"
	"github.com/arribada/audiocontroller/internal/conf"
)

// Command creates the replay command, which runs the pipeline over a WAV file
func Command(settings *conf.Settings) *cobra.Command {
	var realtime bool

	cmd := &cobra.Command{
		Use:   "replay <file.wav>",
		Short: "Classify a recorded WAV file",
		Long:  "Run the capture pipeline against a mono 16-bit WAV file instead of a device. Without --realtime every window is classified as fast as possible.",
		Args:  usage.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.Replay(cmd.Context(), settings, args[0], realtime)
		},
	}

	cmd.Flags().BoolVar(&realtime, "realtime", false, "Pace slices at the file's sample rate")
	return cmd
}
