// Package cmd builds the command line interface
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/arribada/audiocontroller/cmd/config"
	"github.com/arribada/audiocontroller/cmd/devices"
	"github.com/arribada/audiocontroller/cmd/replay"
	"github.com/arribada/audiocontroller/cmd/usage"
	"github.com/arribada/audiocontroller/internal/analysis"
	"github.com/arribada/audiocontroller/internal/buildinfo"
	"github.com/arribada/audiocontroller/internal/conf"
	"github.com/arribada/audiocontroller/internal/errors"
	"github.com/arribada/audiocontroller/internal/logger"
	"github.com/arribada/audiocontroller/internal/telemetry"
)

// Exit statuses
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

const telemetryFlushTimeout = 2 * time.Second

// app is the state shared by the commands of one invocation
type app struct {
	settings   *conf.Settings
	configPath string
	build      *buildinfo.Context
	logger     *logger.CentralLogger
}

// Execute runs the command line and returns the process exit status
func Execute(ctx context.Context, build *buildinfo.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{settings: &conf.Settings{}, build: build}
	rootCmd := a.rootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	a.close()

	var ue *usage.Error
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &ue):
		fmt.Fprintf(stdout, "Error: %v\n", ue.Err)
		ue.Cmd.SetOut(stdout)
		_ = ue.Cmd.Usage()
		return ExitUsage
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitError
	}
}

// rootCommand creates the root command, which captures from <device-id>
func (a *app) rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   conf.AppName + " <device-id>",
		Short: "Sliding-window audio capture and classification",
		Long: "Capture audio from a sound device and classify overlapping windows with a TensorFlow Lite model.\n" +
			"Run '" + conf.AppName + " devices' to list device IDs.",
		Version:       a.build.String(),
		Args:          usage.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd.Root().PersistentFlags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.settings.Audio.Source = args[0]
			return analysis.Run(cmd.Context(), a.settings)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.SetFlagErrorFunc(usage.FlagError)

	rootCmd.AddCommand(
		devices.Command(a.settings),
		replay.Command(a.settings),
		config.Command(a.settings),
	)
	return rootCmd
}

// initialize loads the configuration and sets up logging and telemetry before any command runs
func (a *app) initialize(flags *pflag.FlagSet) error {
	// command line flags take precedence over the config file
	if err := viper.BindPFlag("debug", flags.Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	settings, err := conf.Load(a.configPath)
	if err != nil {
		return err
	}
	*a.settings = *settings

	if a.settings.Debug {
		a.settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
	}
	a.logger, err = logger.NewCentralLogger(&a.settings.Logging)
	if err != nil {
		return fmt.Errorf("error initializing logging: %w", err)
	}
	logger.SetGlobal(a.logger)

	return telemetry.Init(a.settings, a.build, nil)
}

func (a *app) close() {
	telemetry.Flush(telemetryFlushTimeout)
	if a.logger != nil {
		_ = a.logger.Close()
	}
}
