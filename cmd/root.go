// Package cmd implements the patchbay command line tool.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/vsariola/patchbay/config"
	"github.com/vsariola/patchbay/module"
	"github.com/vsariola/patchbay/timeline"
	"github.com/vsariola/patchbay/workspace"
)

// RootOptions holds the global flags and the state derived from them.
type RootOptions struct {
	Verbose    bool
	ConfigPath string

	Config config.Config
	Log    *slog.Logger
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	cmd := &cobra.Command{
		Use:           "patchbay",
		Short:         "patchbay - a modular synthesizer patch runner",
		Long:          "Load, check, inspect and dry-run modular synthesizer patches.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd)
		},
	}
	defaultPath, _ := config.Path()
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log debug messages")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", defaultPath, "configuration `file`")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewDotCommand(opts))
	cmd.AddCommand(NewPresetsCommand(opts))
	cmd.AddCommand(NewTypesCommand(opts))
	cmd.AddCommand(NewImpulseCommand(opts))
	cmd.AddCommand(NewVersionCommand())
	return cmd
}

func (o *RootOptions) init(cmd *cobra.Command) error {
	o.Config = config.Default()
	if o.ConfigPath != "" {
		c, err := config.Load(o.ConfigPath)
		if err != nil {
			return fmt.Errorf("could not load config: %w", err)
		}
		o.Config = c
	}
	level, _ := o.Config.Level()
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

func (o *RootOptions) registry() *module.Registry {
	return module.NewRegistry(
		module.WithLogger(o.Log),
		module.WithTransportOptions(o.Config.TransportOptions()...),
	)
}

// scratch returns a workspace on a fresh engine that never advances, for
// checking and describing patches.
func (o *RootOptions) scratch() *workspace.Workspace {
	eng := timeline.New(timeline.WithClock(&timeline.ManualClock{}), timeline.WithSampleRate(o.Config.SampleRate))
	return workspace.New(eng, workspace.WithRegistry(o.registry()), workspace.WithLogger(o.Log))
}
